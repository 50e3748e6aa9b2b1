package socks5

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"wstunnel/internal/protocol"
	"wstunnel/internal/tunnelclient"
)

func newTestServer(t *testing.T) (*Server, net.Conn) {
	t.Helper()
	upstreamLocal, upstreamRemote := net.Pipe()
	tc := tunnelclient.New(upstreamLocal)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go tc.Run(ctx)
	return &Server{Client: tc}, upstreamRemote
}

// fakeRelayEcho sends no reply to CONNECT frames (none is required by this
// tunnel's protocol, since OpenStream doesn't wait for an ack) and echoes
// DATA frames back.
func fakeRelayEcho(t *testing.T, upstream net.Conn) {
	t.Helper()
	go func() {
		for {
			f, err := protocol.ReadFrame(upstream)
			if err != nil {
				return
			}
			if f.Command == protocol.CmdData {
				protocol.WriteFrame(upstream, protocol.Data(f.StreamId, f.Payload))
			}
		}
	}()
}

func TestHandleConnCompletesSOCKS5ConnectHandshake(t *testing.T) {
	srv, upstream := newTestServer(t)
	fakeRelayEcho(t, upstream)

	client, server := net.Pipe()
	go srv.HandleConn(context.Background(), server)

	// Greeting: version 5, 1 method, no-auth.
	if _, err := client.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		t.Fatalf("write greeting: %v", err)
	}
	greetReply := make([]byte, 2)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := readFull(client, greetReply); err != nil {
		t.Fatalf("read greeting reply: %v", err)
	}
	if greetReply[0] != 0x05 || greetReply[1] != 0x00 {
		t.Fatalf("greeting reply = % x", greetReply)
	}

	// CONNECT request to a domain.
	host := "example.com"
	req := []byte{0x05, 0x01, 0x00, 0x03, byte(len(host))}
	req = append(req, host...)
	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, 443)
	req = append(req, portBytes...)
	if _, err := client.Write(req); err != nil {
		t.Fatalf("write connect request: %v", err)
	}

	header := make([]byte, 4)
	if _, err := readFull(client, header); err != nil {
		t.Fatalf("read reply header: %v", err)
	}
	if header[0] != 0x05 || header[1] != ReplySucceeded {
		t.Fatalf("reply header = % x, want success", header)
	}
}

func TestHandleConnRejectsUDPAssociate(t *testing.T) {
	srv, upstream := newTestServer(t)
	fakeRelayEcho(t, upstream)

	client, server := net.Pipe()
	go srv.HandleConn(context.Background(), server)

	client.Write([]byte{0x05, 0x01, 0x00})
	greetReply := make([]byte, 2)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	readFull(client, greetReply)

	// UDP ASSOCIATE (0x03) request with IPv4 addr.
	req := []byte{0x05, 0x03, 0x00, 0x01, 0, 0, 0, 0, 0, 0}
	client.Write(req)

	header := make([]byte, 4)
	if _, err := readFull(client, header); err != nil {
		t.Fatalf("read reply header: %v", err)
	}
	if header[1] != ReplyCommandNotSupported {
		t.Fatalf("reply code = %d, want %d", header[1], ReplyCommandNotSupported)
	}
}

func TestHandleConnRejectsIPv6AddressType(t *testing.T) {
	srv, upstream := newTestServer(t)
	fakeRelayEcho(t, upstream)

	client, server := net.Pipe()
	go srv.HandleConn(context.Background(), server)

	client.Write([]byte{0x05, 0x01, 0x00})
	greetReply := make([]byte, 2)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	readFull(client, greetReply)

	req := []byte{0x05, 0x01, 0x00, 0x04}
	req = append(req, make([]byte, 16)...)
	req = append(req, 0, 80)
	client.Write(req)

	header := make([]byte, 4)
	if _, err := readFull(client, header); err != nil {
		t.Fatalf("read reply header: %v", err)
	}
	if header[1] != ReplyAddrTypeNotSupported {
		t.Fatalf("reply code = %d, want %d", header[1], ReplyAddrTypeNotSupported)
	}
}

func TestHandleConnRejectsMissingNoAuthMethod(t *testing.T) {
	srv, upstream := newTestServer(t)
	fakeRelayEcho(t, upstream)

	client, server := net.Pipe()
	go srv.HandleConn(context.Background(), server)

	// Greeting offering only username/password auth (0x02).
	if _, err := client.Write([]byte{0x05, 0x01, 0x02}); err != nil {
		t.Fatalf("write greeting: %v", err)
	}
	greetReply := make([]byte, 2)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := readFull(client, greetReply); err != nil {
		t.Fatalf("read greeting reply: %v", err)
	}
	if greetReply[0] != 0x05 || greetReply[1] != 0xFF {
		t.Fatalf("greeting reply = % x, want [05 ff]", greetReply)
	}

	// The connection must be closed after the 0xFF reply.
	if _, err := client.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expected connection to be closed after no-auth rejection")
	}
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
