// Package fileio abstracts the file source/sink the reliable-transport
// engines read from and write to, so the engines can be driven by
// fakes in tests instead of real files (mirroring how the teacher
// library keeps transport and core codec logic independently
// testable, and how samsamfire-gocanopen's pkg/sdo/io.go isolates SDO
// transfer I/O behind a small interface).
package fileio

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidFilename is returned by SanitizeFilename when the supplied
// name contains a path separator or NUL byte, or exceeds the
// protocol's 255-byte bound.
var ErrInvalidFilename = errors.New("fileio: invalid filename")

// SanitizeFilename rejects path traversal and enforces the protocol's
// filename bound. Filenames arrive off the wire unsanitized (§9 of the
// specification); this is the one required checkpoint before any
// received_/downloaded_ path is built from one.
func SanitizeFilename(name string) error {
	if name == "" {
		return ErrInvalidFilename
	}
	if len(name) > 255 {
		return ErrInvalidFilename
	}
	if strings.ContainsAny(name, "/\\") || strings.ContainsRune(name, 0) {
		return ErrInvalidFilename
	}
	return nil
}

// Source produces the bytes of a file to upload.
type Source interface {
	// ReadChunk reads up to len(buf) bytes, returning io.EOF once the
	// source is exhausted (same contract as io.Reader).
	ReadChunk(buf []byte) (n int, err error)
	Close() error
}

// Sink consumes the bytes of a file being downloaded, strictly in
// ascending order, each byte range written exactly once.
type Sink interface {
	WriteChunk(data []byte) error
	// Abort deletes any partial output already written (used on
	// RemoteRefusal/LocalIOFail).
	Abort() error
	Close() error
}

// FileSource reads a file opened for upload.
type FileSource struct {
	f *os.File
}

// OpenSource opens name for reading. A failure here is the sender-side
// NoSuchFile condition: the sender must never transmit a REQUEST if
// this fails.
func OpenSource(dir, name string) (*FileSource, error) {
	if err := SanitizeFilename(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	return &FileSource{f: f}, nil
}

func (s *FileSource) ReadChunk(buf []byte) (int, error) { return s.f.Read(buf) }
func (s *FileSource) Close() error                       { return s.f.Close() }

// FileSink creates (truncating) received_<name> or downloaded_<name>
// in dir, per §6's persisted-state rule.
type FileSink struct {
	path string
	f    *os.File
}

// CreateReceivedSink opens the server-side upload destination.
func CreateReceivedSink(dir, name string) (*FileSink, error) {
	return createSink(dir, "received_", name)
}

// CreateDownloadedSink opens the client-side download destination.
func CreateDownloadedSink(dir, name string) (*FileSink, error) {
	return createSink(dir, "downloaded_", name)
}

func createSink(dir, prefix, name string) (*FileSink, error) {
	if err := SanitizeFilename(name); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, prefix+name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, err
	}
	return &FileSink{path: path, f: f}, nil
}

func (s *FileSink) WriteChunk(data []byte) error {
	_, err := s.f.Write(data)
	return err
}

func (s *FileSink) Abort() error {
	_ = s.f.Close()
	return os.Remove(s.path)
}

func (s *FileSink) Close() error { return s.f.Close() }
