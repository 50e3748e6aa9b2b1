// Package relaytask drives the bidirectional byte copy between a local
// socket (the admitted SOCKS5 connection on the client, or the dialed
// upstream socket on the relay) and one multiplexed stream's inbox/send
// pair. It is the only place payload bytes cross between a real net.Conn
// and the tunnel's framed protocol.
package relaytask

import (
	"context"
	"errors"
	"io"
	"net"

	"golang.org/x/sync/errgroup"

	"wstunnel/internal/bufpool"
	"wstunnel/internal/metrics"
	"wstunnel/internal/protocol"
)

// Sender submits a frame to the shared upstream channel. Implementations
// must be safe for concurrent use, since many relay tasks share one
// channel.
type Sender interface {
	Send(ctx context.Context, f protocol.Frame) error
}

// Run copies bytes in both directions between local and the stream
// identified by id until either side closes or ctx is cancelled. It sends a
// CLOSE frame when the local connection reaches EOF, and stops forwarding
// to local once inbox is closed or yields a CLOSE/ERROR frame.
//
// Run returns once both directions have finished. It always closes local
// before returning.
func Run(ctx context.Context, local net.Conn, id protocol.StreamId, send Sender, inbox <-chan protocol.Frame) error {
	defer local.Close()

	g, gctx := errgroup.WithContext(ctx)
	// Whichever direction finishes first cancels the other; closing local
	// unblocks a Read or Write still pending on it.
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()
	go func() {
		<-gctx.Done()
		local.Close()
	}()
	unlessCanceled := func(err error) error {
		if err != nil && gctx.Err() != nil {
			return gctx.Err()
		}
		return err
	}

	g.Go(func() error {
		defer cancel()
		return unlessCanceled(copyLocalToUpstream(gctx, local, id, send))
	})
	g.Go(func() error {
		defer cancel()
		return unlessCanceled(copyUpstreamToLocal(gctx, local, inbox))
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func copyLocalToUpstream(ctx context.Context, local net.Conn, id protocol.StreamId, send Sender) error {
	buf := bufpool.TCP.Get()
	defer bufpool.TCP.Put(buf)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := local.Read(buf)
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			if sendErr := send.Send(ctx, protocol.Data(id, payload)); sendErr != nil {
				return sendErr
			}
			metrics.ObserveBytesRelayed("local_to_upstream", n)
		}
		if err != nil {
			if err == io.EOF {
				return send.Send(ctx, protocol.Close(id))
			}
			return err
		}
	}
}

func copyUpstreamToLocal(ctx context.Context, local net.Conn, inbox <-chan protocol.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-inbox:
			if !ok {
				return nil
			}
			switch f.Command {
			case protocol.CmdData:
				if _, err := local.Write(f.Payload); err != nil {
					return err
				}
				metrics.ObserveBytesRelayed("upstream_to_local", len(f.Payload))
			case protocol.CmdClose:
				return nil
			case protocol.CmdErrorReply:
				return errors.New("relaytask: peer error " + f.Message)
			}
		}
	}
}
