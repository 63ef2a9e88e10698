package session

import (
	"context"
	"errors"
	"net"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/nickolajgrishuk/srftp/internal/fileio"
	"github.com/nickolajgrishuk/srftp/internal/metrics"
	"github.com/nickolajgrishuk/srftp/internal/netio"
	"github.com/nickolajgrishuk/srftp/internal/proto"
	"github.com/nickolajgrishuk/srftp/internal/reliable"
)

// Session ties a peer address, a dedicated socket, an RTT/window state
// (owned by the reliable package's engines) and a file handle together
// for exactly one upload or one download, per §3's Session definition.
// Session IDs are minted with xid so every log line in a session's
// lifetime can be correlated without a central counter; metric labels
// do not carry the id.
type Session struct {
	ID   xid.ID
	Conn netio.PacketConn
	Peer net.Addr
	Log  *logrus.Entry
}

// New constructs a Session, deriving a short sortable id and attaching
// it (plus the peer) to every log line emitted for the transfer.
func New(conn netio.PacketConn, peer net.Addr, baseLog *logrus.Logger) *Session {
	id := xid.New()
	return &Session{
		ID:   id,
		Conn: conn,
		Peer: peer,
		Log:  baseLog.WithField("session", id.String()).WithField("peer", peer.String()),
	}
}

// SendFile drives the sender engine to completion, translating its
// failures into the session error taxonomy.
func (s *Session) SendFile(ctx context.Context, source fileio.Source) (reliable.Result, *Error) {
	sender := reliable.NewSender(s.Conn, s.Peer, s.Log)
	result, err := sender.Run(ctx, source)
	if err == nil {
		metrics.BytesTransferred.WithLabelValues("upload").Add(float64(result.Bytes))
		return result, nil
	}
	sessionErr := newError(KindLocalIOFail, "upload failed", err)
	metrics.SessionsFailed.WithLabelValues(sessionErr.Kind.String()).Inc()
	return result, sessionErr
}

// ReceiveFile drives the receiver engine to completion, optionally
// starting from an already-captured first frame (the download
// handshake's first DATA frame doubles as its reply). On
// RemoteRefusal the partial sink is deleted, per §7; on every other
// failure the partial output is left exactly as written, per §7's
// no-rollback rule.
func (s *Session) ReceiveFile(sink fileio.Sink, first *proto.Frame) (reliable.Result, *Error) {
	receiver := reliable.NewReceiver(s.Conn, s.Peer, s.Log)

	var result reliable.Result
	var err error
	if first != nil {
		result, err = receiver.RunWithFirst(sink, first)
	} else {
		result, err = receiver.Run(sink)
	}
	if err == nil {
		metrics.BytesTransferred.WithLabelValues("download").Add(float64(result.Bytes))
		return result, nil
	}

	var sessionErr *Error
	switch e := err.(type) {
	case *reliable.RemoteError:
		if abortErr := sink.Abort(); abortErr != nil {
			s.Log.WithError(abortErr).Warn("failed to delete partial output after remote refusal")
		}
		sessionErr = newError(KindRemoteRefusal, e.Message, err)
	case *reliable.IncompleteTransfer:
		sessionErr = newError(KindIdleTimeout, "transfer ended with frames missing", err)
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			sessionErr = newError(KindIdleTimeout, "receive failed", err)
		} else {
			sessionErr = newError(KindLocalIOFail, "receive failed", err)
		}
	}
	metrics.SessionsFailed.WithLabelValues(sessionErr.Kind.String()).Inc()
	return result, sessionErr
}
