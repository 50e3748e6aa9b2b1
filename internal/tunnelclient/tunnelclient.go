// Package tunnelclient implements the client side of the multiplexed
// tunnel: one shared upstream Channel carrying many logical streams, each
// identified by a client-allocated StreamId.
package tunnelclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"wstunnel/internal/protocol"
	"wstunnel/internal/relaytask"
	"wstunnel/internal/streamtable"
	"wstunnel/internal/transport"
)

// PingInterval is how often the client sends a keepalive PING, whether or
// not streams are carrying traffic.
const PingInterval = 30 * time.Second

var ErrClosed = errors.New("tunnelclient: closed")

// TunnelClient multiplexes SOCKS5-admitted local connections onto one
// upstream Channel.
type TunnelClient struct {
	channel *transport.Channel
	streams *streamtable.Table

	mu         sync.Mutex
	dnsWaiters map[protocol.StreamId]chan protocol.Frame

	ctx    context.Context
	cancel context.CancelFunc
}

// New wraps conn, the already-dialed upstream connection (plain TCP,
// websocket, or Shadowsocks-wrapped), as a tunnel client.
func New(conn net.Conn) *TunnelClient {
	tc := &TunnelClient{
		streams:    streamtable.New(),
		dnsWaiters: make(map[protocol.StreamId]chan protocol.Frame),
	}
	tc.channel = transport.NewChannel(conn, tc.handleFrame)
	return tc
}

// Run drives the channel and keepalive ping loop until ctx is cancelled or
// the channel fails. It returns once the channel has stopped; the ping loop
// exits when Run returns.
func (tc *TunnelClient) Run(ctx context.Context) error {
	tc.ctx, tc.cancel = context.WithCancel(ctx)
	defer tc.cancel()
	defer tc.streams.CloseAll()

	go tc.pingLoop(tc.ctx)

	return tc.channel.Run(tc.ctx)
}

func (tc *TunnelClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tc.channel.Send(ctx, protocol.Ping()); err != nil {
				log.Printf("[tunnelclient] ping failed: %v", err)
			}
		}
	}
}

// OpenStream allocates a new stream id, registers it, and sends the CONNECT
// frame admitting host:port to the relay. It does not wait for a reply:
// the caller should immediately start relaying local<->stream traffic with
// relaytask.Run, which surfaces any ERROR reply the relay sends back.
func (tc *TunnelClient) OpenStream(ctx context.Context, host string, port uint16) (*streamtable.Stream, error) {
	id := tc.streams.NextID()
	stream, err := tc.streams.Open(id, host, port)
	if err != nil {
		return nil, err
	}
	stream.SetState(streamtable.Opening)

	if err := tc.channel.Send(ctx, protocol.Connect(id, host, port)); err != nil {
		tc.streams.Remove(id)
		return nil, err
	}
	stream.SetState(streamtable.Open)
	return stream, nil
}

// Relay hands local off to relaytask.Run against stream's inbox, removing
// the stream from the table once relaying finishes either direction.
func (tc *TunnelClient) Relay(ctx context.Context, local net.Conn, stream *streamtable.Stream) error {
	defer tc.streams.Remove(stream.ID)
	return relaytask.Run(ctx, local, stream.ID, tc.channel, stream.Inbox)
}

// ActiveStreamCount reports how many streams are currently tracked.
func (tc *TunnelClient) ActiveStreamCount() int {
	return tc.streams.Len()
}

// ResolveDNS bridges a raw DNS wire-format query through the relay's DoH
// resolver and returns the raw wire-format response.
func (tc *TunnelClient) ResolveDNS(ctx context.Context, query []byte) ([]byte, error) {
	id := tc.streams.NextID()
	waiter := make(chan protocol.Frame, 1)

	tc.mu.Lock()
	tc.dnsWaiters[id] = waiter
	tc.mu.Unlock()
	defer func() {
		tc.mu.Lock()
		delete(tc.dnsWaiters, id)
		tc.mu.Unlock()
	}()

	if err := tc.channel.Send(ctx, protocol.DNSQuery(id, query)); err != nil {
		return nil, err
	}

	select {
	case f := <-waiter:
		if f.Command == protocol.CmdErrorReply {
			return nil, fmt.Errorf("tunnelclient: dns query failed: %s", f.Message)
		}
		return f.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (tc *TunnelClient) handleFrame(f protocol.Frame) {
	switch f.Command {
	case protocol.CmdData, protocol.CmdClose:
		stream, err := tc.streams.Get(f.StreamId)
		if err != nil {
			return
		}
		select {
		case stream.Inbox <- f:
		case <-tc.ctx.Done():
		}

	case protocol.CmdErrorReply:
		if f.StreamId == 0 {
			log.Printf("[tunnelclient] transport failure: %s", f.Message)
			return
		}
		tc.mu.Lock()
		waiter, isDNS := tc.dnsWaiters[f.StreamId]
		tc.mu.Unlock()
		if isDNS {
			waiter <- f
			return
		}
		if stream, err := tc.streams.Get(f.StreamId); err == nil {
			select {
			case stream.Inbox <- f:
			case <-tc.ctx.Done():
			}
		}

	case protocol.CmdDNSResponse:
		tc.mu.Lock()
		waiter, ok := tc.dnsWaiters[f.StreamId]
		tc.mu.Unlock()
		if ok {
			waiter <- f
		}

	case protocol.CmdPong:
		// keepalive acknowledged, nothing to do.
	}
}
