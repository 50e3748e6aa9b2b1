package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"wstunnel/internal/config"
	"wstunnel/internal/metrics"
	"wstunnel/internal/relaysession"
)

func main() {
	configPath := flag.String("c", "relay.yaml", "path to relay config")
	metricsAddr := flag.String("metrics", "", "address to serve Prometheus metrics on (empty disables)")
	flag.Parse()

	cfg, err := config.LoadRelayConfig(*configPath)
	if err != nil {
		log.Fatalf("loading relay config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("shutting down")
		cancel()
	}()

	if *metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, *metricsAddr); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.Fatalf("listening on %s: %v", cfg.Listen, err)
	}
	log.Printf("wstunnel-relay listening on %s", cfg.Listen)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	acceptLoop(ctx, listener, *cfg)
}

func acceptLoop(ctx context.Context, listener net.Listener, cfg config.RelayConfig) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("accept error: %v", err)
				continue
			}
		}
		go handleChannel(ctx, conn, cfg)
	}
}

func handleChannel(ctx context.Context, conn net.Conn, cfg config.RelayConfig) {
	session, err := relaysession.New(conn, cfg)
	if err != nil {
		log.Printf("session setup failed for %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	if err := session.Run(ctx); err != nil {
		log.Printf("session for %s ended: %v", conn.RemoteAddr(), err)
	}
}
