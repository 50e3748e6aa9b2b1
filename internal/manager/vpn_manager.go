// Package manager drives the client-side connection lifecycle: dialing the
// relay, bringing up the local SOCKS5 listener, and tracking connection
// status for the CLI's "status" command.
package manager

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"wstunnel/internal/config"
	"wstunnel/internal/socks5"
	"wstunnel/internal/sscipher"
	"wstunnel/internal/transport"
	"wstunnel/internal/tunif"
	"wstunnel/internal/tunnelclient"
)

type ConnectionStatus struct {
	State     string
	Server    *config.ServerConfig
	StartTime time.Time
}

// VPNManager owns the currently active tunnel, if any, and the local
// SOCKS5 listener fronting it.
type VPNManager struct {
	config *config.GlobalConfig

	mu       sync.RWMutex
	status   *ConnectionStatus
	cancel   context.CancelFunc
	listener net.Listener
	stopTun  func()
}

func NewVPNManager(cfg *config.GlobalConfig) *VPNManager {
	return &VPNManager{
		config: cfg,
		status: &ConnectionStatus{State: "disconnected"},
	}
}

// Connect dials server, establishes one multiplexed tunnel client over it,
// and starts serving the local SOCKS5 listener against that client.
func (m *VPNManager) Connect(server *config.ServerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status.State == "connected" {
		return fmt.Errorf("already connected to %s", m.status.Server.Name)
	}

	dialer, err := transport.CreateDialer(server)
	if err != nil {
		return fmt.Errorf("failed to create dialer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	conn, err := dialer.DialContext(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to dial upstream: %w", err)
	}

	if server.SSMethod != "" {
		conn, err = sscipher.Wrap(conn, server.SSMethod, server.SSSecret)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to wrap shadowsocks cipher: %w", err)
		}
	}

	tc := tunnelclient.New(conn)
	go func() {
		if err := tc.Run(ctx); err != nil {
			m.mu.Lock()
			m.status.State = "disconnected"
			m.mu.Unlock()
		}
	}()

	localAddr := fmt.Sprintf("%s:%d", m.config.LocalAddr, m.config.LocalPort)
	listener, err := net.Listen("tcp", localAddr)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start local server: %w", err)
	}

	srv := &socks5.Server{Client: tc}
	go m.acceptLoop(ctx, listener, srv)

	stopTun, err := tunif.Start(ctx, server.Tun, localAddr)
	if err != nil {
		listener.Close()
		cancel()
		return fmt.Errorf("failed to start tun interface: %w", err)
	}

	m.cancel = cancel
	m.listener = listener
	m.stopTun = stopTun
	m.status = &ConnectionStatus{
		State:     "connected",
		Server:    server,
		StartTime: time.Now(),
	}
	return nil
}

func (m *VPNManager) acceptLoop(ctx context.Context, listener net.Listener, srv *socks5.Server) {
	defer listener.Close()
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		go func() {
			_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
			srv.HandleConn(ctx, conn)
		}()
	}
}

func (m *VPNManager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status.State == "disconnected" {
		return nil
	}

	if m.stopTun != nil {
		m.stopTun()
	}
	if m.cancel != nil {
		m.cancel()
	}
	if m.listener != nil {
		m.listener.Close()
	}

	m.status = &ConnectionStatus{State: "disconnected"}
	return nil
}

func (m *VPNManager) GetStatus() *ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := *m.status
	return &status
}
