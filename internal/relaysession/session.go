// Package relaysession implements the relay side of one upstream channel:
// admitting CONNECT frames against an SSRF denylist, dialing the requested
// target, relaying DATA in both directions, and bridging DNSQUERY frames to
// a DNS-over-HTTPS resolver.
package relaysession

import (
	"context"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"wstunnel/internal/config"
	"wstunnel/internal/metrics"
	"wstunnel/internal/protocol"
	"wstunnel/internal/relaytask"
	"wstunnel/internal/sscipher"
	"wstunnel/internal/streamtable"
	"wstunnel/internal/transport"
)

// Error codes carried in ERROR frame replies. These are the relay's own
// vocabulary, distinct from SOCKS5 reply codes used client-side.
const (
	ErrInvalidHost    = 400
	ErrUnknownStream  = 404
	ErrDuplicateOpen  = 409
	ErrDialFailed     = 502
	ErrIOFailure      = 500
	ErrDoHUnavailable = 503
)

// Session owns one upstream channel's worth of multiplexed streams.
type Session struct {
	cfg     config.RelayConfig
	channel *transport.Channel
	streams *streamtable.Table
	http    *http.Client

	ctx    context.Context
	cancel context.CancelFunc
}

// New wraps conn (already accepted from the relay's listener) in a channel
// and prepares a session ready to Run. If cfg carries Shadowsocks
// credentials, conn is wrapped in that cipher before framing.
func New(conn net.Conn, cfg config.RelayConfig) (*Session, error) {
	if cfg.SSMethod != "" {
		wrapped, err := sscipher.Wrap(conn, cfg.SSMethod, cfg.SSSecret)
		if err != nil {
			return nil, err
		}
		conn = wrapped
	}

	s := &Session{
		cfg:     cfg,
		streams: streamtable.New(),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	s.channel = transport.NewChannel(conn, s.handleFrame)
	return s, nil
}

// Run drives the session until the channel fails or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()
	defer s.streams.CloseAll()
	return s.channel.Run(s.ctx)
}

func (s *Session) handleFrame(f protocol.Frame) {
	switch f.Command {
	case protocol.CmdConnect:
		s.handleConnect(f)
	case protocol.CmdData:
		s.handleData(f)
	case protocol.CmdClose:
		s.handleClose(f)
	case protocol.CmdDNSQuery:
		s.handleDNSQuery(f)
	case protocol.CmdErrorReply:
		log.Printf("[relaysession] peer reported error on stream %d: code=%d %s", f.StreamId, f.Code, f.Message)
	}
}

func (s *Session) handleConnect(f protocol.Frame) {
	if s.cfg.SSRFProtection && !isValidHost(f.Host) {
		s.sendError(f.StreamId, ErrInvalidHost, "Invalid host")
		return
	}

	if _, err := s.streams.Open(f.StreamId, f.Host, f.Port); err != nil {
		s.sendError(f.StreamId, ErrDuplicateOpen, "stream already open")
		return
	}

	dialTimeout := s.cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(s.ctx, dialTimeout)
	defer cancel()

	addr := net.JoinHostPort(f.Host, strconv.Itoa(int(f.Port)))
	dialStart := time.Now()
	conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", addr)
	metrics.ObserveDial(time.Since(dialStart), err)
	if err != nil {
		s.streams.Remove(f.StreamId)
		s.sendError(f.StreamId, ErrDialFailed, "dial failed: "+err.Error())
		return
	}

	stream, err := s.streams.Get(f.StreamId)
	if err != nil {
		conn.Close()
		return
	}
	stream.SetState(streamtable.Open)
	metrics.StreamsOpenedTotal.Inc()
	metrics.StreamsActive.Inc()

	go func() {
		defer metrics.StreamsActive.Dec()
		defer s.streams.Remove(f.StreamId)
		if err := relaytask.Run(s.ctx, conn, f.StreamId, s.channel, stream.Inbox); err != nil {
			log.Printf("[relaysession] stream %d relay error: %v", f.StreamId, err)
			s.sendError(f.StreamId, ErrIOFailure, err.Error())
		}
	}()
}

func (s *Session) handleData(f protocol.Frame) {
	stream, err := s.streams.Get(f.StreamId)
	if err != nil {
		s.sendError(f.StreamId, ErrUnknownStream, "unknown stream")
		return
	}
	select {
	case stream.Inbox <- f:
	case <-s.ctx.Done():
	}
}

func (s *Session) handleClose(f protocol.Frame) {
	stream, err := s.streams.Get(f.StreamId)
	if err != nil {
		return
	}
	select {
	case stream.Inbox <- f:
	case <-s.ctx.Done():
	}
}

func (s *Session) handleDNSQuery(f protocol.Frame) {
	if s.cfg.DoHEndpoint == "" {
		metrics.DoHRequestsTotal.WithLabelValues("disabled").Inc()
		s.sendError(f.StreamId, ErrDoHUnavailable, "DoH bridging disabled")
		return
	}
	resp, err := resolveDoH(s.ctx, s.http, s.cfg.DoHEndpoint, f.Payload)
	if err != nil {
		metrics.DoHRequestsTotal.WithLabelValues("failed").Inc()
		s.sendError(f.StreamId, ErrDoHUnavailable, err.Error())
		return
	}
	metrics.DoHRequestsTotal.WithLabelValues("ok").Inc()
	_ = s.channel.Send(s.ctx, protocol.DNSResponse(f.StreamId, resp))
}

func (s *Session) sendError(id protocol.StreamId, code uint16, msg string) {
	metrics.RelayErrorsTotal.WithLabelValues(strconv.Itoa(int(code))).Inc()
	_ = s.channel.Send(s.ctx, protocol.ErrorReply(id, code, msg))
}
