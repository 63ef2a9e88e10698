// Package client implements the interactive upload/download driver: it
// opens a local ephemeral socket, runs the session handshake against
// the server's well-known port, and drives the matching
// reliable-transport engine, mirroring the request/response loop
// examples/udp-client builds around overproto.Send/UDPRecv in the
// teacher library, generalized to the REQUEST/ACK/DATA handshake. The
// progress meter wraps Source/Sink the way tinyrange-cc's oci client
// wraps its cache-file writer with an io.MultiWriter(file, bar).
package client

import (
	"context"
	"fmt"
	"net"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/nickolajgrishuk/srftp/internal/fileio"
	"github.com/nickolajgrishuk/srftp/internal/netio"
	"github.com/nickolajgrishuk/srftp/internal/proto"
	"github.com/nickolajgrishuk/srftp/internal/session"
)

// Driver runs one command at a time against a fixed server address,
// opening a fresh ephemeral socket (and Session) per command, since
// the protocol migrates to a new per-session port on every handshake.
type Driver struct {
	serverAddr net.Addr
	workDir    string
	log        *logrus.Logger
	// ShowProgress toggles the schollz/progressbar/v3 meter during
	// transfers; disabled in tests.
	ShowProgress bool
}

// New constructs a Driver that talks to serverAddr and reads/writes
// local files under workDir.
func New(serverAddr net.Addr, workDir string, log *logrus.Logger) *Driver {
	return &Driver{serverAddr: serverAddr, workDir: workDir, log: log, ShowProgress: true}
}

// Upload sends filename to the server, per the upload handshake and
// sender engine in §4.4/§4.6.
func (d *Driver) Upload(ctx context.Context, filename string) error {
	source, err := fileio.OpenSource(d.workDir, filename)
	if err != nil {
		return fmt.Errorf("client: cannot open %q for upload: %w", filename, err)
	}
	defer source.Close()

	conn, err := netio.Bind(0)
	if err != nil {
		return err
	}
	defer conn.Close()

	result, err := session.ClientHandshake(conn, d.serverAddr, proto.KindUploadRequest, filename)
	if err != nil {
		return err
	}

	sess := session.New(conn, result.Peer, d.log)
	sess.Log.WithField("filename", filename).Info("upload accepted")

	var tracked fileio.Source = source
	if d.ShowProgress {
		bar := d.newBar(filename)
		defer bar.Close()
		tracked = &progressSource{Source: source, bar: bar}
	}

	_, sessErr := sess.SendFile(ctx, tracked)
	if sessErr != nil {
		return sessErr
	}
	return nil
}

// Download requests filename from the server and writes it to
// downloaded_<filename> under workDir.
func (d *Driver) Download(ctx context.Context, filename string) error {
	sink, err := fileio.CreateDownloadedSink(d.workDir, filename)
	if err != nil {
		return err
	}

	conn, err := netio.Bind(0)
	if err != nil {
		_ = sink.Abort()
		return err
	}
	defer conn.Close()

	result, err := session.ClientHandshake(conn, d.serverAddr, proto.KindDownloadRequest, filename)
	if err != nil {
		_ = sink.Abort()
		return err
	}

	sess := session.New(conn, result.Peer, d.log)
	sess.Log.WithField("filename", filename).Info("download starting")

	var tracked fileio.Sink = sink
	var bar *progressbar.ProgressBar
	if d.ShowProgress {
		bar = d.newBar(filename)
		tracked = &progressSink{Sink: sink, bar: bar}
	}

	_, sessErr := sess.ReceiveFile(tracked, result.FirstFrame)
	if bar != nil {
		_ = bar.Close()
	}
	if sessErr != nil {
		return sessErr
	}
	return sink.Close()
}

// newBar renders an indeterminate byte counter: neither an upload's
// frame count nor a download's total size is known before the
// transfer's own END frame arrives.
func (d *Driver) newBar(label string) *progressbar.ProgressBar {
	return progressbar.DefaultBytes(-1, label)
}

// progressSource advances bar by each chunk read, mirroring how
// io.MultiWriter(file, bar) tracks an upload's bytes in tinyrange-cc.
type progressSource struct {
	fileio.Source
	bar *progressbar.ProgressBar
}

func (p *progressSource) ReadChunk(buf []byte) (int, error) {
	n, err := p.Source.ReadChunk(buf)
	if n > 0 {
		_ = p.bar.Add(n)
	}
	return n, err
}

// progressSink advances bar by each chunk written.
type progressSink struct {
	fileio.Sink
	bar *progressbar.ProgressBar
}

func (p *progressSink) WriteChunk(data []byte) error {
	err := p.Sink.WriteChunk(data)
	if err == nil {
		_ = p.bar.Add(len(data))
	}
	return err
}
