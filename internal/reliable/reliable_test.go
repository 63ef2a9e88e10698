package reliable

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickolajgrishuk/srftp/internal/netio"
)

// memSource is an in-memory fileio.Source for tests.
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

// memSink is an in-memory fileio.Sink for tests.
type memSink struct {
	buf     bytes.Buffer
	aborted bool
}

func (s *memSink) WriteChunk(data []byte) error {
	_, err := s.buf.Write(data)
	return err
}

func (s *memSink) Abort() error { s.aborted = true; return nil }
func (s *memSink) Close() error { return nil }

func discardLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func runTransfer(t *testing.T, payload []byte, configure func(client, server *netio.FakeConn)) (*memSink, error) {
	t.Helper()

	client, server := netio.NewFakePair("client:1", "server:1")
	if configure != nil {
		configure(client, server)
	}

	sender := NewSender(client, server.LocalAddr(), discardLog())
	receiver := NewReceiver(server, client.LocalAddr(), discardLog())

	sink := &memSink{}
	recvErrCh := make(chan error, 1)
	go func() {
		_, err := receiver.Run(sink)
		recvErrCh <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, sendErr := sender.Run(ctx, &memSource{data: payload})
	require.NoError(t, sendErr)

	select {
	case err := <-recvErrCh:
		return sink, err
	case <-time.After(10 * time.Second):
		t.Fatal("receiver never returned")
		return nil, nil
	}
}

func TestTransferCompletesWithNoLoss(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 400) // multiple frames
	sink, err := runTransfer(t, payload, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, sink.buf.Bytes())
}

func TestTransferSurvivesADroppedDataFrame(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 500)
	sink, err := runTransfer(t, payload, func(client, server *netio.FakeConn) {
		client.DropNth(2) // drop the second DATA frame the client sends
	})
	require.NoError(t, err)
	assert.Equal(t, payload, sink.buf.Bytes())
}

func TestTransferSurvivesADroppedAck(t *testing.T) {
	payload := bytes.Repeat([]byte("xyzxyzxyzx"), 500)
	sink, err := runTransfer(t, payload, func(client, server *netio.FakeConn) {
		server.DropNth(1) // drop the first ACK the server sends back
	})
	require.NoError(t, err)
	assert.Equal(t, payload, sink.buf.Bytes())
}

func TestTransferSurvivesACorruptedDataFrame(t *testing.T) {
	payload := bytes.Repeat([]byte("corruptme!"), 500)
	sink, err := runTransfer(t, payload, func(client, server *netio.FakeConn) {
		client.CorruptNth(3) // flip a bit in the third DATA frame
	})
	require.NoError(t, err)
	assert.Equal(t, payload, sink.buf.Bytes())
}

func TestRemoteErrorAbortsReceiver(t *testing.T) {
	client, server := netio.NewFakePair("client:1", "server:1")
	receiver := NewReceiver(server, client.LocalAddr(), discardLog())

	sink := &memSink{}
	recvErrCh := make(chan error, 1)
	go func() {
		_, err := receiver.Run(sink)
		recvErrCh <- err
	}()

	sender := NewSender(client, server.LocalAddr(), discardLog())
	sender.sendError("file not found")

	select {
	case err := <-recvErrCh:
		var remoteErr *RemoteError
		require.True(t, errors.As(err, &remoteErr))
		assert.Equal(t, "file not found", remoteErr.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("receiver never observed the ERROR frame")
	}
}
