package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingExec struct {
	calls atomic.Int32
	out   []byte
	err   error
	delay time.Duration
}

func (e *countingExec) run(context.Context) ([]byte, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	return e.out, e.err
}

func newTestMiddleware() *Middleware {
	return NewMiddleware(NewMemoryCache(0), nil, DefaultPolicy(), nil)
}

func TestMiddleware_HitAfterMiss(t *testing.T) {
	mw := newTestMiddleware()
	exec := &countingExec{out: []byte(`{"ok":true}`)}
	inv := Invocation{Tool: "forecast", Principal: "key-1", Args: map[string]any{"city": "Oslo"}, TTL: time.Minute}

	out, hit, err := mw.Execute(context.Background(), inv, exec.run)
	if err != nil || hit || string(out) != `{"ok":true}` {
		t.Fatalf("first Execute() = %s, %v, %v", out, hit, err)
	}
	out, hit, err = mw.Execute(context.Background(), inv, exec.run)
	if err != nil || !hit || string(out) != `{"ok":true}` {
		t.Fatalf("second Execute() = %s, %v, %v", out, hit, err)
	}
	if exec.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", exec.calls.Load())
	}
}

func TestMiddleware_Bypass(t *testing.T) {
	tests := []struct {
		name string
		inv  Invocation
	}{
		{name: "no ttl", inv: Invocation{Tool: "echo"}},
		{name: "unsafe tag", inv: Invocation{Tool: "delete_all", Tags: []string{"Delete"}, TTL: time.Minute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := newTestMiddleware()
			exec := &countingExec{out: []byte("x")}
			for range 2 {
				if _, hit, _ := mw.Execute(context.Background(), tt.inv, exec.run); hit {
					t.Error("Execute() hit on bypassed tool")
				}
			}
			if exec.calls.Load() != 2 {
				t.Errorf("calls = %d, want 2", exec.calls.Load())
			}
		})
	}
}

func TestMiddleware_ErrorsNotCached(t *testing.T) {
	mw := newTestMiddleware()
	boom := errors.New("upstream failed")
	exec := &countingExec{err: boom}
	inv := Invocation{Tool: "forecast", TTL: time.Minute}

	for range 2 {
		if _, _, err := mw.Execute(context.Background(), inv, exec.run); !errors.Is(err, boom) {
			t.Fatalf("Execute() error = %v, want boom", err)
		}
	}
	if exec.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", exec.calls.Load())
	}
}

func TestMiddleware_ConcurrentMissesCollapse(t *testing.T) {
	mw := newTestMiddleware()
	exec := &countingExec{out: []byte("v"), delay: 50 * time.Millisecond}
	inv := Invocation{Tool: "slow", Principal: "p", TTL: time.Minute}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if out, _, err := mw.Execute(context.Background(), inv, exec.run); err != nil || string(out) != "v" {
				t.Errorf("Execute() = %s, %v", out, err)
			}
		}()
	}
	wg.Wait()
	if exec.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", exec.calls.Load())
	}
}

func TestMiddleware_PrincipalsIsolated(t *testing.T) {
	mw := newTestMiddleware()
	exec := &countingExec{out: []byte("v")}
	args := map[string]any{"q": "same"}

	_, _, _ = mw.Execute(context.Background(), Invocation{Tool: "t", Principal: "a", Args: args, TTL: time.Minute}, exec.run)
	_, hit, _ := mw.Execute(context.Background(), Invocation{Tool: "t", Principal: "b", Args: args, TTL: time.Minute}, exec.run)
	if hit {
		t.Error("principal b received principal a's cached result")
	}
}
