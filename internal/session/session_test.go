package session

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickolajgrishuk/srftp/internal/netio"
	"github.com/nickolajgrishuk/srftp/internal/proto"
	"github.com/nickolajgrishuk/srftp/internal/reliable"
)

type memSource struct {
	data []byte
	pos  int
}

func (s *memSource) ReadChunk(buf []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(buf, s.data[s.pos:])
	s.pos += n
	return n, nil
}
func (s *memSource) Close() error { return nil }

type memSink struct {
	written []byte
	aborted bool
}

func (s *memSink) WriteChunk(data []byte) error { s.written = append(s.written, data...); return nil }
func (s *memSink) Abort() error                 { s.aborted = true; return nil }
func (s *memSink) Close() error                  { return nil }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestSessionReceiveFileDeletesPartialOutputOnRemoteRefusal(t *testing.T) {
	client, server := netio.NewFakePair("client:1", "server:1")
	sess := New(server, client.LocalAddr(), quietLogger())

	go func() {
		errFrame := &proto.Frame{Kind: proto.KindError}
		msg := []byte("file not found")
		errFrame.DataLen = uint32(len(msg))
		copy(errFrame.Payload[:], msg)
		buf, _ := proto.Encode(errFrame)
		_, _ = client.WriteTo(buf, server.LocalAddr())
	}()

	sink := &memSink{}
	_, sessErr := sess.ReceiveFile(sink, nil)
	require.NotNil(t, sessErr)
	assert.Equal(t, KindRemoteRefusal, sessErr.Kind)
	assert.True(t, sink.aborted)
}

func TestSessionSendFileSucceeds(t *testing.T) {
	client, server := netio.NewFakePair("client:1", "server:1")
	sess := New(client, server.LocalAddr(), quietLogger())

	sink := &memSink{}
	recvDone := make(chan struct{})
	go func() {
		r := reliable.NewReceiver(server, client.LocalAddr(), logrus.NewEntry(quietLogger()))
		_, _ = r.Run(sink)
		close(recvDone)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	payload := []byte("small upload payload")
	result, sessErr := sess.SendFile(ctx, &memSource{data: payload})
	require.Nil(t, sessErr)
	assert.Equal(t, int64(len(payload)), result.Bytes)

	select {
	case <-recvDone:
	case <-time.After(5 * time.Second):
		t.Fatal("receiver never finished")
	}
	assert.Equal(t, payload, sink.written)
}
