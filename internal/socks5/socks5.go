// Package socks5 implements the client-facing SOCKS5 (RFC 1928) admission
// server: handshake, request parsing, and handing admitted CONNECT requests
// off to a tunnelclient.TunnelClient stream.
package socks5

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"net"
	"strconv"
	"time"

	"wstunnel/internal/tunnelclient"
)

// Reply codes (RFC 1928 §6).
const (
	ReplySucceeded            = 0x00
	ReplyHostUnreachable      = 0x04
	ReplyCommandNotSupported  = 0x07
	ReplyAddrTypeNotSupported = 0x08
)

const (
	cmdConnect = 0x01
	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04
)

// Server admits local SOCKS5 clients and relays their CONNECT traffic
// through Client. Only the CONNECT command and IPv4/domain address types
// are supported; everything else is rejected with the matching RFC 1928
// reply code instead of being silently accepted.
type Server struct {
	Client *tunnelclient.TunnelClient
}

// HandleConn drives one accepted SOCKS5 connection to completion. It always
// closes c before returning.
func (s *Server) HandleConn(ctx context.Context, c net.Conn) {
	defer c.Close()

	if err := handshake(c); err != nil {
		log.Printf("[socks5] handshake: %v", err)
		return
	}
	_ = c.SetDeadline(time.Time{})

	cmd, atyp, host, port, err := readRequest(c)
	if err != nil {
		log.Printf("[socks5] request: %v", err)
		return
	}

	if cmd != cmdConnect {
		_ = reply(c, ReplyCommandNotSupported, "0.0.0.0:0")
		return
	}
	if atyp == atypIPv6 {
		_ = reply(c, ReplyAddrTypeNotSupported, "0.0.0.0:0")
		return
	}

	stream, err := s.Client.OpenStream(ctx, host, port)
	if err != nil {
		log.Printf("[socks5] open stream: %v", err)
		_ = reply(c, ReplyHostUnreachable, "0.0.0.0:0")
		return
	}

	if err := reply(c, ReplySucceeded, "0.0.0.0:0"); err != nil {
		return
	}

	if err := s.Client.Relay(ctx, c, stream); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("[socks5] relay: %v", err)
	}
}

func handshake(c net.Conn) error {
	h := make([]byte, 2)
	if _, err := io.ReadFull(c, h); err != nil {
		return err
	}
	if h[0] != 0x05 {
		return errors.New("socks5: unsupported protocol version")
	}
	methods := make([]byte, int(h[1]))
	if _, err := io.ReadFull(c, methods); err != nil {
		return err
	}
	// No-auth only.
	noAuthOffered := false
	for _, m := range methods {
		if m == 0x00 {
			noAuthOffered = true
			break
		}
	}
	if !noAuthOffered {
		_, _ = c.Write([]byte{0x05, 0xFF})
		return errors.New("socks5: no-auth method not offered")
	}
	_, err := c.Write([]byte{0x05, 0x00})
	return err
}

func readRequest(c net.Conn) (cmd, atyp byte, host string, port uint16, err error) {
	h := make([]byte, 4)
	if _, err = io.ReadFull(c, h); err != nil {
		return
	}
	if h[0] != 0x05 {
		err = errors.New("socks5: bad request version")
		return
	}
	cmd = h[1]
	atyp = h[3]

	host, port, err = readAddrPort(c, atyp)
	return
}

func readAddrPort(r io.Reader, atyp byte) (host string, port uint16, err error) {
	switch atyp {
	case atypIPv4:
		b := make([]byte, 4)
		if _, err = io.ReadFull(r, b); err != nil {
			return
		}
		host = net.IP(b).String()
	case atypDomain:
		l := make([]byte, 1)
		if _, err = io.ReadFull(r, l); err != nil {
			return
		}
		b := make([]byte, int(l[0]))
		if _, err = io.ReadFull(r, b); err != nil {
			return
		}
		host = string(b)
	case atypIPv6:
		b := make([]byte, 16)
		if _, err = io.ReadFull(r, b); err != nil {
			return
		}
		host = net.IP(b).String()
	default:
		err = errors.New("socks5: unsupported address type")
		return
	}
	pb := make([]byte, 2)
	if _, err = io.ReadFull(r, pb); err != nil {
		return
	}
	port = binary.BigEndian.Uint16(pb)
	return
}

func reply(c net.Conn, rep byte, bind string) error {
	host, portStr, err := net.SplitHostPort(bind)
	if err != nil {
		host, portStr = "0.0.0.0", "0"
	}

	port, _ := strconv.Atoi(portStr)

	var atyp byte
	var addr []byte
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			atyp, addr = atypIPv4, ip4
		} else {
			atyp, addr = atypIPv6, ip.To16()
		}
	} else {
		atyp = atypDomain
		addr = append([]byte{byte(len(host))}, []byte(host)...)
	}

	b := []byte{0x05, rep, 0x00, atyp}
	b = append(b, addr...)
	var pb [2]byte
	binary.BigEndian.PutUint16(pb[:], uint16(port))
	b = append(b, pb[:]...)

	_, err = c.Write(b)
	return err
}
