package reliable

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nickolajgrishuk/srftp/internal/fileio"
	"github.com/nickolajgrishuk/srftp/internal/netio"
	"github.com/nickolajgrishuk/srftp/internal/proto"
)

// idleTimeout is how long the receiver waits for any inbound frame
// before declaring the session dead.
const idleTimeout = 20 * time.Second

// RemoteError is returned when the peer sent an ERROR frame; the
// caller is expected to translate this into a session.Error of kind
// RemoteRefusal.
type RemoteError struct{ Message string }

func (e *RemoteError) Error() string { return "reliable: remote error: " + e.Message }

// IncompleteTransfer is returned when END arrives but DATA frames
// below it are still missing.
type IncompleteTransfer struct{ Missing int }

func (e *IncompleteTransfer) Error() string {
	return "reliable: END received with frames still missing"
}

// Receiver drives one download (or the data phase of one upload) to
// completion over conn, talking only to peer.
type Receiver struct {
	conn netio.PacketConn
	peer net.Addr
	log  *logrus.Entry

	buffer   map[uint32]*proto.Frame
	expected uint32
}

// NewReceiver constructs a Receiver bound to the session's socket and
// fixed peer address.
func NewReceiver(conn netio.PacketConn, peer net.Addr, log *logrus.Entry) *Receiver {
	return &Receiver{
		conn:   conn,
		peer:   peer,
		log:    log,
		buffer: make(map[uint32]*proto.Frame),
	}
}

// Run reads inbound frames until END is received and the contiguous
// prefix has been delivered, an ERROR frame arrives, or the idle
// timeout elapses.
func (r *Receiver) Run(sink fileio.Sink) (Result, error) {
	return r.run(sink, nil)
}

// RunWithFirst is Run, but processes an already-captured frame (the
// download handshake's first DATA frame, read while learning the
// responder's ephemeral port) before resuming normal reads.
func (r *Receiver) RunWithFirst(sink fileio.Sink, first *proto.Frame) (Result, error) {
	return r.run(sink, first)
}

func (r *Receiver) run(sink fileio.Sink, first *proto.Frame) (Result, error) {
	buf := make([]byte, proto.FrameSize)
	var bytesWritten int64

	if first != nil {
		done, result, err := r.handleFrame(first, sink, &bytesWritten)
		if done {
			return result, err
		}
	}

	for {
		_ = r.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			return Result{}, err
		}
		if !sameAddr(addr, r.peer) {
			continue
		}

		frame, err := proto.Decode(buf[:n])
		if err != nil {
			continue // MalformedFrame: drop and keep reading
		}

		done, result, err := r.handleFrame(frame, sink, &bytesWritten)
		if done {
			return result, err
		}
	}
}

// handleFrame processes one inbound frame. done is true once the
// session has a terminal outcome (result, err) to return.
func (r *Receiver) handleFrame(frame *proto.Frame, sink fileio.Sink, bytesWritten *int64) (done bool, result Result, err error) {
	switch frame.Kind {
	case proto.KindError:
		message := string(frame.Payload[:frame.DataLen])
		return true, Result{}, &RemoteError{Message: message}

	case proto.KindEnd:
		if _, err := r.drain(sink, bytesWritten); err != nil {
			return true, Result{}, err
		}
		r.sendAck(frame.Seq)
		if r.expected < frame.Seq {
			return true, Result{}, &IncompleteTransfer{Missing: int(frame.Seq - r.expected)}
		}
		return true, Result{Frames: int(frame.Seq), Bytes: *bytesWritten}, nil

	case proto.KindData:
		if err := r.handleData(frame, sink, bytesWritten); err != nil {
			return true, Result{}, err
		}
		return false, Result{}, nil

	default:
		return false, Result{}, nil
	}
}

func (r *Receiver) handleData(frame *proto.Frame, sink fileio.Sink, bytesWritten *int64) error {
	computed := proto.ChecksumOf(frame.Payload, frame.DataLen)
	if computed != frame.Checksum {
		// IntegrityFail: drop silently, force a sender retransmit.
		return nil
	}

	if frame.Seq < r.expected {
		r.sendAck(frame.Seq) // already delivered; duplicate ACK is harmless
		return nil
	}
	if _, buffered := r.buffer[frame.Seq]; buffered {
		r.sendAck(frame.Seq)
		return nil
	}

	r.buffer[frame.Seq] = frame
	r.sendAck(frame.Seq)

	_, err := r.drain(sink, bytesWritten)
	return err
}

// drain writes every contiguous frame starting at expected to sink.
func (r *Receiver) drain(sink fileio.Sink, bytesWritten *int64) (int, error) {
	written := 0
	for {
		f, ok := r.buffer[r.expected]
		if !ok {
			break
		}
		if err := sink.WriteChunk(f.Payload[:f.DataLen]); err != nil {
			return written, err
		}
		*bytesWritten += int64(f.DataLen)
		delete(r.buffer, r.expected)
		r.expected++
		written++
	}
	return written, nil
}

func (r *Receiver) sendAck(seq uint32) {
	ack := &proto.Frame{Kind: proto.KindAck, Seq: seq}
	buf, err := proto.Encode(ack)
	if err != nil {
		return
	}
	if _, err := r.conn.WriteTo(buf, r.peer); err != nil {
		r.log.WithError(err).WithField("seq", seq).Debug("failed to send ACK")
	}
}
