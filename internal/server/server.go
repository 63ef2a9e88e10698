// Package server implements the concurrent dispatcher described in the
// specification's §4.6/§5: a single goroutine blocks on the well-known
// port decoding REQUEST frames, and spawns one worker per accepted
// session on a fresh ephemeral socket, the same LISTEN-then-spawn shape
// the teacher library's examples/udp-server main loop uses around
// overproto.UDPRecv, generalized from an echo responder to a
// full upload/download worker.
package server

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nickolajgrishuk/srftp/internal/fileio"
	"github.com/nickolajgrishuk/srftp/internal/metrics"
	"github.com/nickolajgrishuk/srftp/internal/netio"
	"github.com/nickolajgrishuk/srftp/internal/proto"
	"github.com/nickolajgrishuk/srftp/internal/session"
)

// Dispatcher owns the well-known-port listening socket and the work
// directory uploads/downloads are served out of.
type Dispatcher struct {
	listener netio.PacketConn
	workDir  string
	log      *logrus.Logger

	wg sync.WaitGroup
}

// New constructs a Dispatcher bound to an already-open listening
// socket (normally netio.Bind(proto.WellKnownPort)).
func New(listener netio.PacketConn, workDir string, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{listener: listener, workDir: workDir, log: log}
}

// Serve blocks, accepting REQUEST frames and spawning one worker
// goroutine per session, until ctx is cancelled or the listening
// socket errors out. It never blocks on a single session: a worker
// stuck on a slow peer does not delay the next LISTEN.
func (d *Dispatcher) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = d.listener.Close()
	}()

	for {
		req, err := session.ReadRequest(d.listener)
		if err != nil {
			d.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		d.wg.Add(1)
		go d.handle(ctx, req)
	}
}

// handle runs exactly one session worker: bind a fresh ephemeral
// socket, complete the handshake from it, then run the matching
// reliable-transport engine. Each worker is stateless with respect to
// every other session, per §5's concurrency model.
func (d *Dispatcher) handle(ctx context.Context, req *session.Request) {
	defer d.wg.Done()

	role := roleOf(req.Kind)
	metrics.SessionsStarted.WithLabelValues(role).Inc()

	ephemeral, err := netio.Bind(0)
	if err != nil {
		d.log.WithError(err).Error("failed to bind ephemeral worker socket")
		metrics.SessionsFailed.WithLabelValues("bind-failure").Inc()
		return
	}
	defer ephemeral.Close()

	sess := session.New(ephemeral, req.ClientAddr, d.log)
	sess.Log.WithField("filename", req.Filename).WithField("role", role).Info("session accepted")

	switch req.Kind {
	case proto.KindUploadRequest:
		d.serveUpload(ctx, sess, req.Filename)
	case proto.KindDownloadRequest:
		d.serveDownload(ctx, sess, req.Filename)
	}
}

func (d *Dispatcher) serveUpload(ctx context.Context, sess *session.Session, filename string) {
	sink, err := fileio.CreateReceivedSink(d.workDir, filename)
	if err != nil {
		sess.Log.WithError(err).Warn("cannot create upload destination")
		metrics.SessionsFailed.WithLabelValues("local-io-fail").Inc()
		return
	}
	defer sink.Close()

	if err := session.AcceptUpload(sess.Conn, sess.Peer); err != nil {
		sess.Log.WithError(err).Warn("failed to send upload ACK")
		return
	}

	if _, sessErr := sess.ReceiveFile(sink, nil); sessErr != nil {
		sess.Log.WithError(sessErr).Warn("upload failed")
	}
}

func (d *Dispatcher) serveDownload(ctx context.Context, sess *session.Session, filename string) {
	source, err := fileio.OpenSource(d.workDir, filename)
	if err != nil {
		sess.Log.WithError(err).Warn("requested download file not found")
		if refuseErr := session.RefuseDownload(sess.Conn, sess.Peer, "file not found: "+filename); refuseErr != nil {
			sess.Log.WithError(refuseErr).Warn("failed to send download refusal")
		}
		metrics.SessionsFailed.WithLabelValues("no-such-file").Inc()
		return
	}
	defer source.Close()

	if _, sessErr := sess.SendFile(ctx, source); sessErr != nil {
		sess.Log.WithError(sessErr).Warn("download failed")
	}
}

func roleOf(kind proto.Kind) string {
	if kind == proto.KindUploadRequest {
		return "upload"
	}
	return "download"
}
