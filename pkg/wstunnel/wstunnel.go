// Package wstunnel provides a small public surface for reusing this
// repository as a library. The implementation lives in internal/ and may
// change without notice.
package wstunnel

import (
	"context"
	"net"

	"wstunnel/internal/config"
	"wstunnel/internal/metrics"
	"wstunnel/internal/relaysession"
	"wstunnel/internal/socks5"
	"wstunnel/internal/tunif"
	"wstunnel/internal/tunnelclient"
)

// --- Config ---

type ServerConfig = config.ServerConfig
type GlobalConfig = config.GlobalConfig
type TunConfig = config.TunConfig
type RelayConfig = config.RelayConfig

func LoadGlobalConfig(dir string) (*GlobalConfig, error) { return config.LoadGlobalConfig(dir) }
func LoadRelayConfig(path string) (*RelayConfig, error)  { return config.LoadRelayConfig(path) }
func DefaultRelayConfig() RelayConfig                    { return config.DefaultRelayConfig() }
func ParseKey(key, name string) (*ServerConfig, error)   { return config.ParseKey(key, name) }

// --- Client ---

type TunnelClient = tunnelclient.TunnelClient

// NewTunnelClient wraps an already-dialed upstream connection as a
// multiplexed tunnel client.
func NewTunnelClient(conn net.Conn) *TunnelClient { return tunnelclient.New(conn) }

type Socks5Server = socks5.Server

// StartTun brings up the optional TUN virtual interface in front of a
// local SOCKS5 listener.
func StartTun(ctx context.Context, cfg TunConfig, socksAddr string) (func(), error) {
	return tunif.Start(ctx, cfg, socksAddr)
}

// --- Relay ---

type RelaySession = relaysession.Session

// NewRelaySession wraps an accepted upstream connection as a relay
// session ready to Run.
func NewRelaySession(conn net.Conn, cfg RelayConfig) (*RelaySession, error) {
	return relaysession.New(conn, cfg)
}

// --- Metrics ---

// ServeMetrics runs a Prometheus /metrics HTTP endpoint on addr until ctx
// is cancelled.
func ServeMetrics(ctx context.Context, addr string) error {
	return metrics.Serve(ctx, addr)
}
