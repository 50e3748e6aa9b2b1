package tunif

import (
	"context"
	"testing"

	"wstunnel/internal/config"
)

func TestStartDisabledIsNoop(t *testing.T) {
	stop, err := Start(context.Background(), config.TunConfig{Enable: false}, "127.0.0.1:1080")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stop() // must not panic
}

func TestStartMissingDeviceErrors(t *testing.T) {
	_, err := Start(context.Background(), config.TunConfig{Enable: true, Device: ""}, "127.0.0.1:1080")
	if err == nil {
		t.Fatal("expected error when device is empty")
	}
}

func TestStartNonAutoMissingInterfaceErrors(t *testing.T) {
	_, err := Start(context.Background(), config.TunConfig{
		Enable: true,
		Device: "definitely-not-a-real-interface-xyz",
		Auto:   false,
	}, "127.0.0.1:1080")
	if err == nil {
		t.Fatal("expected error for nonexistent interface with auto=false")
	}
}
