// Package window implements the fixed-size Selective-Repeat send
// window: per-slot retransmission state, ACK bookkeeping and due-timer
// sweeps. It is the generalization of the teacher library's
// congestion-controlled ReliableContext (transport/reliable.go) to a
// fixed WINDOW_SIZE with no congestion control, per the specification's
// Non-goals.
package window

import (
	"sync"
	"time"

	"github.com/nickolajgrishuk/srftp/internal/proto"
)

// Slot holds one in-flight frame and its retransmission bookkeeping.
type Slot struct {
	Frame   *proto.Frame
	SentAt  time.Time
	Acked   bool
	Retried bool
}

// AckOutcome reports what mark_ack observed for a given seq.
type AckOutcome struct {
	// FirstAck is true iff this call transitioned the slot from unacked
	// to acked (duplicate ACKs report false).
	FirstAck bool
	// Advanced is true iff Base moved forward as a result.
	Advanced bool
	// RTT is the measured round-trip time, valid only when FirstAck is
	// true and the frame was never retransmitted (Karn's rule).
	RTT time.Duration
	// SampleValid is true iff RTT should be fed to the RTT estimator.
	SampleValid bool
}

// Window is the sender's fixed-size sliding window.
//
// Invariants: Base <= NextSeq <= Total; NextSeq-Base <= len(slots).
// All exported methods are safe for concurrent use; each method holds
// the window's single mutex across its whole {inspect-then-mutate}
// section rather than using a per-field lock. The RTT estimator is not
// covered by this mutex: the sender guards it with a separate lock.
type Window struct {
	mu    sync.Mutex
	slots []Slot
	size  uint32

	base    uint32
	nextSeq uint32
	total   uint32
}

// New constructs a Window of the given slot count (WINDOW_SIZE=1
// reproduces stop-and-wait). total is the final frame count, known
// once the source has been fully enumerated.
func New(size uint32, total uint32) *Window {
	if size == 0 {
		size = 1
	}
	return &Window{
		slots: make([]Slot, size),
		size:  size,
		total: total,
	}
}

func (w *Window) index(seq uint32) uint32 { return seq % w.size }

// Base returns the oldest unacknowledged seq.
func (w *Window) Base() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.base
}

// NextSeq returns the next seq to transmit.
func (w *Window) NextSeq() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextSeq
}

// Done reports whether every frame up to Total has been acknowledged.
func (w *Window) Done() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.base >= w.total
}

// OpenSlot stores frame at the next sequence slot if the window has
// room and more frames remain to send. Returns false if the window is
// full or the source is exhausted; the caller must not transmit in
// that case.
func (w *Window) OpenSlot(frame *proto.Frame) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.nextSeq-w.base >= w.size || w.nextSeq >= w.total {
		return false
	}

	seq := w.nextSeq
	idx := w.index(seq)
	w.slots[idx] = Slot{
		Frame:  frame,
		SentAt: time.Now(),
		Acked:  false,
	}
	w.nextSeq++
	return true
}

// MarkAck records an acknowledgement for seq and slides Base forward
// while the slot at the new base is acked. Out-of-window and duplicate
// ACKs are idempotent no-ops (Outcome.FirstAck == false).
func (w *Window) MarkAck(seq uint32) AckOutcome {
	w.mu.Lock()
	defer w.mu.Unlock()

	if seq < w.base || seq >= w.nextSeq {
		return AckOutcome{}
	}

	idx := w.index(seq)
	slot := &w.slots[idx]
	if slot.Acked {
		return AckOutcome{}
	}

	out := AckOutcome{FirstAck: true}
	if !slot.Retried {
		out.RTT = time.Since(slot.SentAt)
		out.SampleValid = true
	}
	slot.Acked = true

	for w.base < w.nextSeq && w.slots[w.index(w.base)].Acked {
		w.base++
		out.Advanced = true
	}

	return out
}

// DueRetransmit is one seq whose slot is overdue for retransmission.
type DueRetransmit struct {
	Seq   uint32
	Frame *proto.Frame
}

// DueRetransmits returns, in ascending seq order, every unacked slot
// whose SentAt is older than rto. For each returned seq the caller
// must re-send Frame; DueRetransmits resets the slot's timestamp to now
// and marks it retried (so a subsequent ACK is excluded from RTT
// sampling per Karn's rule) but never marks it acked.
func (w *Window) DueRetransmits(now time.Time, rto time.Duration) []DueRetransmit {
	w.mu.Lock()
	defer w.mu.Unlock()

	var due []DueRetransmit
	for seq := w.base; seq < w.nextSeq; seq++ {
		idx := w.index(seq)
		slot := &w.slots[idx]
		if slot.Acked {
			continue
		}
		if now.Sub(slot.SentAt) > rto {
			slot.SentAt = now
			slot.Retried = true
			due = append(due, DueRetransmit{Seq: seq, Frame: slot.Frame})
		}
	}
	return due
}
