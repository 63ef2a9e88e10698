// Package reliable implements the sender and receiver engines: the
// concurrent tasks that drive a sliding-window Selective-Repeat
// transfer once a session's peer address is fixed by the handshake.
// The shared-window locking discipline follows the teacher library's
// transport.ReliableContext (transport/reliable.go), generalized from
// a congestion-controlled window to the specification's fixed
// WINDOW_SIZE.
package reliable

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nickolajgrishuk/srftp/internal/fileio"
	"github.com/nickolajgrishuk/srftp/internal/metrics"
	"github.com/nickolajgrishuk/srftp/internal/netio"
	"github.com/nickolajgrishuk/srftp/internal/proto"
	"github.com/nickolajgrishuk/srftp/internal/rtt"
	"github.com/nickolajgrishuk/srftp/internal/window"
)

// timerSweep is the wake-up period for the retransmission timer task.
const timerSweep = 100 * time.Millisecond

// endRetries is how many times the sender repeats the END frame
// before giving up on an ACK for it.
const endRetries = 3

// Result summarizes a completed send.
type Result struct {
	Frames int
	Bytes  int64
}

// ErrPeerUnresponsive reports a peer that stopped acknowledging. No
// code path in this package returns it: the sender has no retry
// ceiling and retransmits an unacknowledged slot on every expired RTO.
var ErrPeerUnresponsive = errors.New("reliable: peer stopped acknowledging")

// Sender drives one upload (or the data phase of one download) to
// completion over conn, talking only to peer.
type Sender struct {
	conn netio.PacketConn
	peer net.Addr
	log  *logrus.Entry

	malformed int32
}

// NewSender constructs a Sender bound to the session's ephemeral
// socket and fixed peer address.
func NewSender(conn netio.PacketConn, peer net.Addr, log *logrus.Entry) *Sender {
	return &Sender{conn: conn, peer: peer, log: log}
}

// Run enumerates source into frames and drives the window/ACK/timer
// tasks until every frame is acknowledged, or ctx is cancelled, then
// sends END. A missing ACK for END does not make Run fail: sendEnd
// stops waiting after a bounded time.
func (s *Sender) Run(ctx context.Context, source fileio.Source) (Result, error) {
	frames, bytesTotal, err := enumerate(source)
	if err != nil {
		s.sendError(err.Error())
		return Result{}, err
	}

	total := uint32(len(frames))
	win := window.New(proto.WindowSize, total)
	estimator := rtt.New()
	var mu sync.Mutex // guards estimator, which ackReader and the main loop both touch

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	endAcked := make(chan struct{})
	var endAckedOnce sync.Once

	wg.Add(2)
	go s.ackReaderTask(ctx, &wg, win, &mu, estimator, total, endAcked, &endAckedOnce)
	go s.timerTask(ctx, &wg, win, &mu, estimator)

	for !win.Done() {
		select {
		case <-ctx.Done():
			wg.Wait()
			return Result{}, ctx.Err()
		default:
		}
		seq := win.NextSeq()
		if seq >= total {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if win.OpenSlot(frames[seq]) {
			if err := s.transmit(frames[seq]); err != nil {
				cancel()
				wg.Wait()
				return Result{}, err
			}
		} else {
			time.Sleep(5 * time.Millisecond)
		}
	}

	// Grace period: let straggling ACKs (and duplicate retransmissions
	// already in flight) settle before announcing END. An empty source
	// sent no DATA, so its END goes out immediately.
	if total > 0 {
		s.sleepRTO(&mu, estimator, 2)
	}

	s.sendEnd(total, endAcked)

	cancel()
	wg.Wait()

	return Result{Frames: int(total), Bytes: bytesTotal}, nil
}

func (s *Sender) sleepRTO(mu *sync.Mutex, estimator *rtt.Estimator, factor int) {
	mu.Lock()
	d := estimator.RTO()
	mu.Unlock()
	time.Sleep(time.Duration(factor) * d)
}

func (s *Sender) sendEnd(total uint32, endAcked <-chan struct{}) {
	end := &proto.Frame{Kind: proto.KindEnd, Seq: total}
	buf, _ := proto.Encode(end)

	for i := 0; i < endRetries; i++ {
		if _, err := s.conn.WriteTo(buf, s.peer); err != nil {
			s.log.WithError(err).Warn("failed to send END frame")
		}
		select {
		case <-endAcked:
			return
		case <-time.After(timerSweep):
		}
	}

	// No ACK for END within the grace window: the receiver's own idle
	// timeout will close its side, so the sender simply gives up here.
	select {
	case <-endAcked:
	case <-time.After(500 * time.Millisecond):
		s.log.Warn("no ACK for END frame; relying on receiver idle timeout")
	}
}

func (s *Sender) transmit(f *proto.Frame) error {
	buf, err := proto.Encode(f)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteTo(buf, s.peer)
	return err
}

func (s *Sender) sendError(message string) {
	f := &proto.Frame{Kind: proto.KindError}
	data := []byte(message)
	if len(data) > proto.MaxPayload {
		data = data[:proto.MaxPayload]
	}
	f.DataLen = uint32(len(data))
	copy(f.Payload[:], data)
	buf, err := proto.Encode(f)
	if err != nil {
		return
	}
	_, _ = s.conn.WriteTo(buf, s.peer)
}

// ackReaderTask blocks on short-timeout reads and applies ACKs to the
// window, sampling RTT only for first-time ACKs of non-retransmitted
// frames (Karn's rule, enforced inside window.MarkAck).
func (s *Sender) ackReaderTask(
	ctx context.Context,
	wg *sync.WaitGroup,
	win *window.Window,
	mu *sync.Mutex,
	estimator *rtt.Estimator,
	total uint32,
	endAcked chan struct{},
	endAckedOnce *sync.Once,
) {
	defer wg.Done()
	buf := make([]byte, proto.FrameSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(timerSweep))
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			continue // read timeout; re-check ctx
		}
		if !sameAddr(addr, s.peer) {
			continue
		}

		frame, err := proto.Decode(buf[:n])
		if err != nil {
			atomic.AddInt32(&s.malformed, 1)
			continue
		}
		if frame.Kind != proto.KindAck {
			continue
		}

		if frame.Seq == total {
			endAckedOnce.Do(func() { close(endAcked) })
			continue
		}

		outcome := win.MarkAck(frame.Seq)
		if outcome.SampleValid {
			mu.Lock()
			estimator.Sample(outcome.RTT)
			rto := estimator.RTO()
			mu.Unlock()
			metrics.RTO.Observe(rto.Seconds())
		}
	}
}

// timerTask sweeps the window every timerSweep and retransmits any
// slot overdue by the current RTO.
func (s *Sender) timerTask(ctx context.Context, wg *sync.WaitGroup, win *window.Window, mu *sync.Mutex, estimator *rtt.Estimator) {
	defer wg.Done()
	ticker := time.NewTicker(timerSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mu.Lock()
			rto := estimator.RTO()
			mu.Unlock()

			due := win.DueRetransmits(time.Now(), rto)
			for _, d := range due {
				if err := s.transmit(d.Frame); err != nil {
					s.log.WithError(err).WithField("seq", d.Seq).Warn("retransmit failed")
					continue
				}
				metrics.Retransmissions.Inc()
			}
		}
	}
}

func sameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.String() == b.String()
}

// enumerate reads source to completion, building one DATA frame per
// MaxPayload-sized chunk with its checksum precomputed. An I/O error
// mid-enumeration aborts the whole transfer: the caller must not send
// a partial file followed by END.
func enumerate(source fileio.Source) ([]*proto.Frame, int64, error) {
	var frames []*proto.Frame
	var total int64
	buf := make([]byte, proto.MaxPayload)

	for {
		if len(frames) >= proto.MaxFrames {
			return nil, 0, errors.New("reliable: source exceeds MaxFrames")
		}
		n, err := source.ReadChunk(buf)
		if n > 0 {
			f := &proto.Frame{
				Kind:    proto.KindData,
				Seq:     uint32(len(frames)),
				DataLen: uint32(n),
			}
			copy(f.Payload[:], buf[:n])
			f.Checksum = proto.ChecksumOf(f.Payload, f.DataLen)
			frames = append(frames, f)
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
	}

	return frames, total, nil
}
