package server

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickolajgrishuk/srftp/internal/client"
	"github.com/nickolajgrishuk/srftp/internal/netio"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// startDispatcher binds the well-known-port listener to an OS-assigned
// loopback port (port 0) instead of proto.WellKnownPort, so tests never
// collide with a real server or with each other. It returns the
// resolved listening address and stops the dispatcher on test cleanup.
func startDispatcher(t *testing.T, workDir string) net.Addr {
	t.Helper()

	listener, err := netio.Bind(0)
	require.NoError(t, err)

	dispatcher := New(listener, workDir, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = dispatcher.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	return listener.LocalAddr()
}

func loopbackAddr(t *testing.T, listening net.Addr) net.Addr {
	t.Helper()
	udpAddr, ok := listening.(*net.UDPAddr)
	require.True(t, ok)
	addr, err := netio.ResolveAddr("127.0.0.1", uint16(udpAddr.Port))
	require.NoError(t, err)
	return addr
}

func TestUploadThenDownloadRoundTrip(t *testing.T) {
	serverDir := t.TempDir()
	clientDir := t.TempDir()

	listening := startDispatcher(t, serverDir)
	serverAddr := loopbackAddr(t, listening)

	require.NoError(t, os.WriteFile(filepath.Join(clientDir, "notes.txt"), []byte("hello from the client"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	uploadDriver := client.New(serverAddr, clientDir, quietLogger())
	uploadDriver.ShowProgress = false
	require.NoError(t, uploadDriver.Upload(ctx, "notes.txt"))

	uploaded, err := os.ReadFile(filepath.Join(serverDir, "received_notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello from the client", string(uploaded))

	downloadDriver := client.New(serverAddr, serverDir, quietLogger())
	downloadDriver.ShowProgress = false
	require.NoError(t, downloadDriver.Download(ctx, "received_notes.txt"))

	downloaded, err := os.ReadFile(filepath.Join(serverDir, "downloaded_received_notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello from the client", string(downloaded))
}

func TestDownloadOfMissingFileIsRefused(t *testing.T) {
	serverDir := t.TempDir()
	clientDir := t.TempDir()

	listening := startDispatcher(t, serverDir)
	serverAddr := loopbackAddr(t, listening)

	driver := client.New(serverAddr, clientDir, quietLogger())
	driver.ShowProgress = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := driver.Download(ctx, "does-not-exist.bin")
	assert.Error(t, err)
}

func TestConcurrentUploadsDoNotInterfere(t *testing.T) {
	serverDir := t.TempDir()
	clientDir := t.TempDir()

	listening := startDispatcher(t, serverDir)
	serverAddr := loopbackAddr(t, listening)

	names := []string{"alpha.bin", "beta.bin"}
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(clientDir, name), []byte("payload-"+name), 0o644))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, len(names))
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			driver := client.New(serverAddr, clientDir, quietLogger())
			driver.ShowProgress = false
			errs[i] = driver.Upload(ctx, name)
		}(i, name)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, names[i])
	}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(serverDir, "received_"+name))
		require.NoError(t, err)
		assert.Equal(t, "payload-"+name, string(data))
	}
}
