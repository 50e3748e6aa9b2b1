package relaysession

import (
	"context"
	"net"
	"testing"
	"time"

	"wstunnel/internal/config"
	"wstunnel/internal/protocol"
)

func newTestSession(t *testing.T, cfg config.RelayConfig) (*Session, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	s, err := New(a, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)
	return s, b
}

func TestHandleConnectRejectsSSRFDeniedHost(t *testing.T) {
	_, peer := newTestSession(t, config.RelayConfig{SSRFProtection: true, DialTimeout: time.Second})
	defer peer.Close()

	if err := protocol.WriteFrame(peer, protocol.Connect(1, "127.0.0.1", 80)); err != nil {
		t.Fatalf("write: %v", err)
	}

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := protocol.ReadFrame(peer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if reply.Command != protocol.CmdErrorReply || reply.Code != ErrInvalidHost || reply.Message != "Invalid host" {
		t.Fatalf("reply = %+v, want ERROR code %d %q", reply, ErrInvalidHost, "Invalid host")
	}
}

func TestHandleDataUnknownStreamReturnsError(t *testing.T) {
	_, peer := newTestSession(t, config.RelayConfig{DialTimeout: time.Second})
	defer peer.Close()

	if err := protocol.WriteFrame(peer, protocol.Data(42, []byte("x"))); err != nil {
		t.Fatalf("write: %v", err)
	}

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := protocol.ReadFrame(peer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if reply.Command != protocol.CmdErrorReply || reply.Code != ErrUnknownStream {
		t.Fatalf("reply = %+v, want ERROR code %d", reply, ErrUnknownStream)
	}
}

func TestHandleConnectDuplicateStreamReturnsError(t *testing.T) {
	s, peer := newTestSession(t, config.RelayConfig{DialTimeout: time.Second})
	defer peer.Close()

	if _, err := s.streams.Open(5, "example.com", 443); err != nil {
		t.Fatalf("pre-open: %v", err)
	}

	if err := protocol.WriteFrame(peer, protocol.Connect(5, "example.com", 443)); err != nil {
		t.Fatalf("write: %v", err)
	}

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := protocol.ReadFrame(peer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if reply.Command != protocol.CmdErrorReply || reply.Code != ErrDuplicateOpen {
		t.Fatalf("reply = %+v, want ERROR code %d", reply, ErrDuplicateOpen)
	}
}

func TestHandleConnectDialFailureReturnsError(t *testing.T) {
	_, peer := newTestSession(t, config.RelayConfig{DialTimeout: 2 * time.Second})
	defer peer.Close()

	// Port 0 is never connectable; SSRFProtection is off in this config so
	// the loopback host itself isn't what triggers the failure.
	if err := protocol.WriteFrame(peer, protocol.Connect(1, "127.0.0.1", 0)); err != nil {
		t.Fatalf("write: %v", err)
	}

	peer.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := protocol.ReadFrame(peer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if reply.Command != protocol.CmdErrorReply || reply.Code != ErrDialFailed {
		t.Fatalf("reply = %+v, want ERROR code %d", reply, ErrDialFailed)
	}
}

func TestHandleDNSQueryDisabledReturnsError(t *testing.T) {
	_, peer := newTestSession(t, config.RelayConfig{DoHEndpoint: ""})
	defer peer.Close()

	if err := protocol.WriteFrame(peer, protocol.DNSQuery(1, []byte{1, 2, 3})); err != nil {
		t.Fatalf("write: %v", err)
	}

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := protocol.ReadFrame(peer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if reply.Command != protocol.CmdErrorReply || reply.Code != ErrDoHUnavailable {
		t.Fatalf("reply = %+v, want ERROR code %d", reply, ErrDoHUnavailable)
	}
}
