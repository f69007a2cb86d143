package confirm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestConfirmedBoundary(t *testing.T) {
	g := New(3)

	tests := []struct {
		name       string
		eventBlock uint64
		head       uint64
		want       bool
	}{
		{"exactly head-D", 50, 53, true},
		{"head-D+1", 51, 53, false},
		{"well buried", 10, 53, true},
		{"at head", 53, 53, false},
		{"event ahead of head", 60, 53, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Confirmed(tt.eventBlock, tt.head); got != tt.want {
				t.Errorf("Confirmed(%d, %d) = %v, want %v", tt.eventBlock, tt.head, got, tt.want)
			}
		})
	}
}

func TestConfirmedZeroDepth(t *testing.T) {
	g := New(0)
	if !g.Confirmed(53, 53) {
		t.Error("depth 0 should confirm an event at head")
	}
	if g.Confirmed(54, 53) {
		t.Error("event above head is never confirmed")
	}
}

func TestWaitReleasesOnHeadAdvance(t *testing.T) {
	g := &Gate{Depth: 3, PollInterval: time.Millisecond}

	var head atomic.Uint64
	head.Store(51)
	go func() {
		time.Sleep(10 * time.Millisecond)
		head.Store(53)
	}()

	released, err := g.Wait(context.Background(), func(context.Context) (uint64, error) {
		return head.Load(), nil
	}, 50)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if released < 53 {
		t.Fatalf("released at head %d", released)
	}
}

func TestWaitToleratesHeadErrors(t *testing.T) {
	g := &Gate{Depth: 1, PollInterval: time.Millisecond}

	var calls atomic.Int64
	_, err := g.Wait(context.Background(), func(context.Context) (uint64, error) {
		if calls.Add(1) < 3 {
			return 0, errors.New("connection refused")
		}
		return 100, nil
	}, 50)
	if err != nil {
		t.Fatalf("wait should ride through head errors: %v", err)
	}
}

func TestWaitCancellation(t *testing.T) {
	g := &Gate{Depth: 5, PollInterval: time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Wait(ctx, func(context.Context) (uint64, error) {
		return 0, nil
	}, 50)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
