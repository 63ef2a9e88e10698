// Package session implements the REQUEST -> ephemeral-port-migration
// handshake described in the specification (§4.6), the terminal error
// taxonomy callers observe (§7), and the Session object that ties a
// peer address, socket, file handle and reliable-transport engine
// together for exactly one upload or download.
package session

import (
	"net"
	"time"

	"github.com/nickolajgrishuk/srftp/internal/netio"
	"github.com/nickolajgrishuk/srftp/internal/proto"
)

// HandshakeTimeout bounds how long ClientHandshake waits for the
// responder's first reply to a REQUEST frame.
const HandshakeTimeout = 5 * time.Second

// Request is one decoded UPLOAD_REQUEST/DOWNLOAD_REQUEST, as observed
// by the dispatcher on the well-known port.
type Request struct {
	Kind       proto.Kind
	Filename   string
	ClientAddr net.Addr
}

// ReadRequest blocks on conn (the well-known-port listening socket)
// until a decodable REQUEST frame arrives, discarding anything else.
// It never returns on a transient decode failure; only a hard socket
// error (e.g. the listener closing) propagates.
func ReadRequest(conn netio.PacketConn) (*Request, error) {
	buf := make([]byte, proto.FrameSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			return nil, err
		}
		frame, err := proto.Decode(buf[:n])
		if err != nil {
			continue // MalformedFrame: discarded here without logging
		}
		if frame.Kind != proto.KindUploadRequest && frame.Kind != proto.KindDownloadRequest {
			continue
		}
		return &Request{Kind: frame.Kind, Filename: frame.Filename, ClientAddr: addr}, nil
	}
}

// AcceptUpload sends the upload handshake's ACK(0) from the worker's
// fresh ephemeral socket, the datagram that teaches the client which
// port to address the rest of the transfer to.
func AcceptUpload(conn netio.PacketConn, clientAddr net.Addr) error {
	ack := &proto.Frame{Kind: proto.KindAck, Seq: 0}
	buf, err := proto.Encode(ack)
	if err != nil {
		return err
	}
	_, err = conn.WriteTo(buf, clientAddr)
	return err
}

// RefuseDownload sends an ERROR frame when the requested file cannot
// be opened for a download (scenario: server missing file).
func RefuseDownload(conn netio.PacketConn, clientAddr net.Addr, message string) error {
	f := &proto.Frame{Kind: proto.KindError}
	data := []byte(message)
	if len(data) > proto.MaxPayload {
		data = data[:proto.MaxPayload]
	}
	f.DataLen = uint32(len(data))
	copy(f.Payload[:], data)
	buf, err := proto.Encode(f)
	if err != nil {
		return err
	}
	_, err = conn.WriteTo(buf, clientAddr)
	return err
}

// ClientResult is what the client-side handshake learns: the
// responder's ephemeral address, and — for downloads — the first DATA
// frame, which doubles as the handshake reply and must still be
// processed by the receiver engine.
type ClientResult struct {
	Peer       net.Addr
	FirstFrame *proto.Frame // nil for uploads
}

// ClientHandshake sends a REQUEST to serverAddr and waits for the
// first reply, learning the responder's per-session ephemeral port
// from its source address.
func ClientHandshake(conn netio.PacketConn, serverAddr net.Addr, kind proto.Kind, filename string) (*ClientResult, error) {
	req := &proto.Frame{Kind: kind, Filename: filename}
	buf, err := proto.Encode(req)
	if err != nil {
		return nil, err
	}
	if _, err := conn.WriteTo(buf, serverAddr); err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	replyBuf := make([]byte, proto.FrameSize)
	n, addr, err := conn.ReadFrom(replyBuf)
	if err != nil {
		return nil, newError(KindHandshakeFail, "no response to request", err)
	}

	frame, err := proto.Decode(replyBuf[:n])
	if err != nil {
		return nil, newError(KindHandshakeFail, "malformed handshake reply", err)
	}

	switch kind {
	case proto.KindUploadRequest:
		if frame.Kind != proto.KindAck {
			return nil, newError(KindHandshakeFail, "expected ACK(0), got "+frame.Kind.String(), nil)
		}
		return &ClientResult{Peer: addr}, nil

	case proto.KindDownloadRequest:
		if frame.Kind == proto.KindError {
			return nil, newError(KindRemoteRefusal, string(frame.Payload[:frame.DataLen]), nil)
		}
		if frame.Kind != proto.KindData {
			return nil, newError(KindHandshakeFail, "expected first DATA frame, got "+frame.Kind.String(), nil)
		}
		return &ClientResult{Peer: addr, FirstFrame: frame}, nil

	default:
		return nil, newError(KindHandshakeFail, "unsupported request kind", nil)
	}
}
