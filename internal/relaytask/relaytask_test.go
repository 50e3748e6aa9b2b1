package relaytask

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"wstunnel/internal/protocol"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []protocol.Frame
}

func (f *fakeSender) Send(ctx context.Context, fr protocol.Frame) error {
	f.mu.Lock()
	f.sent = append(f.sent, fr)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) frames() []protocol.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Frame, len(f.sent))
	copy(out, f.sent)
	return out
}

func TestRunForwardsLocalReadsAsData(t *testing.T) {
	local, peer := net.Pipe()
	sender := &fakeSender{}
	inbox := make(chan protocol.Frame)

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), local, 1, sender, inbox)
	}()

	peer.Write([]byte("hello"))
	peer.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return in time")
	}

	frames := sender.frames()
	if len(frames) < 2 {
		t.Fatalf("expected DATA then CLOSE, got %d frames", len(frames))
	}
	if frames[0].Command != protocol.CmdData || string(frames[0].Payload) != "hello" {
		t.Fatalf("frame[0] = %+v", frames[0])
	}
	last := frames[len(frames)-1]
	if last.Command != protocol.CmdClose {
		t.Fatalf("last frame = %+v, want CLOSE", last)
	}
}

func TestRunWritesInboxDataToLocal(t *testing.T) {
	local, peer := net.Pipe()
	sender := &fakeSender{}
	inbox := make(chan protocol.Frame, 1)

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), local, 1, sender, inbox)
	}()

	inbox <- protocol.Data(1, []byte("world"))

	buf := make([]byte, 5)
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := peer.Read(buf); err != nil {
		t.Fatalf("read from peer: %v", err)
	}
	if string(buf) != "world" {
		t.Fatalf("got %q, want %q", buf, "world")
	}

	inbox <- protocol.Close(1)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after CLOSE frame")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	local, _ := net.Pipe()
	sender := &fakeSender{}
	inbox := make(chan protocol.Frame)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, local, 1, sender, inbox)
	}()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
