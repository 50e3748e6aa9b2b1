// Package tunif brings up an optional TUN virtual network interface in
// front of the client's local SOCKS5 listener, so whole-system traffic can
// be routed through the tunnel instead of requiring SOCKS5-aware
// applications.
package tunif

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/xjasonlyu/tun2socks/v2/engine"

	"wstunnel/internal/config"
)

// Start brings the TUN interface up and points tun2socks' engine at the
// SOCKS5 listener already running at socksAddr. If cfg.Enable is false it
// is a no-op and returns a stop function that does nothing.
//
// The returned stop function is idempotent and also invoked automatically
// if ctx is cancelled.
func Start(ctx context.Context, cfg config.TunConfig, socksAddr string) (func(), error) {
	if !cfg.Enable {
		return func() {}, nil
	}

	if cfg.Device == "" {
		return nil, fmt.Errorf("tunif: tun.enable=true but tun.device is empty")
	}

	if !cfg.Auto {
		log.Printf("[tunif] expecting existing interface %q", cfg.Device)
		if err := checkExists(cfg.Device); err != nil {
			return nil, fmt.Errorf("tunif: tun.auto=false and %w", err)
		}
	} else {
		log.Printf("[tunif] managing interface %q", cfg.Device)
		if _, err := os.Stat("/dev/net/tun"); err != nil {
			return nil, fmt.Errorf("tunif: tun.auto=true but /dev/net/tun not available: %w", err)
		}
	}

	mtu := cfg.MTU
	if mtu == 0 {
		mtu = 1500
	}

	k := &engine.Key{
		Device:     cfg.Device,
		MTU:        mtu,
		Interface:  cfg.OutIface,
		Proxy:      "socks5://" + socksAddr,
		LogLevel:   cfg.LogLevel,
		UDPTimeout: 60 * time.Second,
	}

	engine.Insert(k)
	engine.Start()

	log.Printf("[tunif] engine started (device=%s, mtu=%d, out-if=%s)", cfg.Device, mtu, cfg.OutIface)

	stop := func() {
		log.Printf("[tunif] stopping engine")
		engine.Stop()
	}

	go func() {
		<-ctx.Done()
		engine.Stop()
	}()

	return stop, nil
}

func checkExists(name string) error {
	if name == "" {
		return fmt.Errorf("tun device name is empty")
	}
	if _, err := net.InterfaceByName(name); err != nil {
		return fmt.Errorf("tun interface %q not found", name)
	}
	return nil
}
