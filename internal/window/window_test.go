package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickolajgrishuk/srftp/internal/proto"
)

func frame(seq uint32) *proto.Frame {
	return &proto.Frame{Kind: proto.KindData, Seq: seq}
}

func TestOpenSlotRespectsWindowSize(t *testing.T) {
	w := New(2, 5)
	require.True(t, w.OpenSlot(frame(0)))
	require.True(t, w.OpenSlot(frame(1)))
	assert.False(t, w.OpenSlot(frame(2)), "window is full until seq 0 is acked")
}

func TestOpenSlotStopsAtTotal(t *testing.T) {
	w := New(5, 1)
	require.True(t, w.OpenSlot(frame(0)))
	assert.False(t, w.OpenSlot(frame(1)), "only one frame exists")
}

func TestMarkAckSlidesBase(t *testing.T) {
	w := New(3, 3)
	w.OpenSlot(frame(0))
	w.OpenSlot(frame(1))
	w.OpenSlot(frame(2))

	out := w.MarkAck(1)
	assert.True(t, out.FirstAck)
	assert.False(t, out.Advanced, "base can't move past an unacked seq 0")
	assert.Equal(t, uint32(0), w.Base())

	out = w.MarkAck(0)
	assert.True(t, out.Advanced)
	assert.Equal(t, uint32(2), w.Base(), "base slides past both 0 and the already-acked 1")
}

func TestMarkAckDuplicateIsNoOp(t *testing.T) {
	w := New(2, 2)
	w.OpenSlot(frame(0))
	first := w.MarkAck(0)
	second := w.MarkAck(0)
	assert.True(t, first.FirstAck)
	assert.False(t, second.FirstAck)
}

func TestMarkAckOutOfWindowIsNoOp(t *testing.T) {
	w := New(2, 5)
	out := w.MarkAck(3)
	assert.False(t, out.FirstAck)
}

func TestKarnsRuleExcludesRetransmittedSample(t *testing.T) {
	w := New(1, 1)
	w.OpenSlot(frame(0))
	_ = w.DueRetransmits(time.Now().Add(time.Hour), time.Millisecond) // force retry

	out := w.MarkAck(0)
	assert.True(t, out.FirstAck)
	assert.False(t, out.SampleValid, "a retransmitted slot must not produce an RTT sample")
}

func TestFreshAckProducesValidSample(t *testing.T) {
	w := New(1, 1)
	w.OpenSlot(frame(0))
	out := w.MarkAck(0)
	assert.True(t, out.SampleValid)
}

func TestDueRetransmitsOnlyReturnsOverdueSlots(t *testing.T) {
	w := New(2, 2)
	w.OpenSlot(frame(0))
	w.OpenSlot(frame(1))

	due := w.DueRetransmits(time.Now(), time.Hour)
	assert.Empty(t, due, "nothing is overdue yet")

	due = w.DueRetransmits(time.Now().Add(time.Hour), time.Millisecond)
	assert.Len(t, due, 2)
}

func TestDoneReflectsBaseVersusTotal(t *testing.T) {
	w := New(1, 1)
	assert.False(t, w.Done())
	w.OpenSlot(frame(0))
	w.MarkAck(0)
	assert.True(t, w.Done())
}
