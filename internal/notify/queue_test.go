package notify

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

type scriptedGateway struct {
	mu    sync.Mutex
	calls []Send
	fail  map[string]error // phone -> error
	delay time.Duration
}

func (g *scriptedGateway) Send(_ context.Context, phone string, body string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, Send{Phone: phone, Body: body})
	g.mu.Unlock()
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	if err, ok := g.fail[phone]; ok {
		return "", err
	}
	return "msg-" + phone, nil
}

func (g *scriptedGateway) callOrder() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	phones := make([]string, len(g.calls))
	for i, c := range g.calls {
		phones[i] = c.Phone
	}
	return phones
}

func queueLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestQueue_PreservesSubmissionOrder(t *testing.T) {
	gw := &scriptedGateway{delay: 2 * time.Millisecond}
	q := NewQueue(gw, queueLogger(), QueueConfig{Capacity: 16})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	phones := []string{"p1", "p2", "p3", "p4", "p5"}
	results := make([]<-chan SendResult, 0, len(phones))
	for _, p := range phones {
		results = append(results, q.Enqueue(ctx, Send{Phone: p, Body: "hello"}))
	}
	for i, ch := range results {
		res := <-ch
		if !res.OK {
			t.Fatalf("send %d failed: %v", i, res.Err)
		}
		if res.ProviderMessageID != "msg-"+phones[i] {
			t.Fatalf("send %d: unexpected provider id %q", i, res.ProviderMessageID)
		}
	}

	got := gw.callOrder()
	for i, p := range phones {
		if got[i] != p {
			t.Fatalf("gateway call order %v, want %v", got, phones)
		}
	}
}

func TestQueue_GatewayErrorCapturedNotThrown(t *testing.T) {
	boom := errors.New("provider timeout")
	gw := &scriptedGateway{fail: map[string]error{"bad": boom}}
	q := NewQueue(gw, queueLogger(), QueueConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	res := <-q.Enqueue(ctx, Send{Phone: "bad", Body: "x"})
	if res.OK {
		t.Fatal("expected failed result")
	}
	if !errors.Is(res.Err, boom) {
		t.Fatalf("expected provider error, got %v", res.Err)
	}

	// A failure must not wedge the queue for the next caller.
	res = <-q.Enqueue(ctx, Send{Phone: "good", Body: "y"})
	if !res.OK {
		t.Fatalf("follow-up send failed: %v", res.Err)
	}
}

func TestQueue_SingleFlight(t *testing.T) {
	// With a per-call delay, concurrent enqueuers must still produce exactly
	// serialized gateway calls.
	gw := &scriptedGateway{delay: 5 * time.Millisecond}
	q := NewQueue(gw, queueLogger(), QueueConfig{Capacity: 32})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	var wg sync.WaitGroup
	const n = 10
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-q.Enqueue(ctx, Send{Phone: "p", Body: "b"})
		}()
	}
	wg.Wait()

	if len(gw.callOrder()) != n {
		t.Fatalf("expected %d gateway calls, got %d", n, len(gw.callOrder()))
	}
}

func TestQueue_EnqueueRejectsCancelledContext(t *testing.T) {
	gw := &scriptedGateway{}
	q := NewQueue(gw, queueLogger(), QueueConfig{Capacity: 8})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	res := <-q.Enqueue(cancelled, Send{Phone: "p1", Body: "b"})
	if res.OK || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected context error despite free buffer space, got %+v", res)
	}

	// The rejected send must not have been buffered.
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go q.Run(ctx)
	res = <-q.Enqueue(ctx, Send{Phone: "p2", Body: "b"})
	if !res.OK {
		t.Fatalf("live send failed: %v", res.Err)
	}
	if calls := gw.callOrder(); len(calls) != 1 || calls[0] != "p2" {
		t.Fatalf("gateway calls = %v, want only the live send", calls)
	}
}

func TestQueue_DrainOnShutdown(t *testing.T) {
	gw := &scriptedGateway{delay: 20 * time.Millisecond}
	q := NewQueue(gw, queueLogger(), QueueConfig{Capacity: 8})

	ctx, cancel := context.WithCancel(context.Background())
	first := q.Enqueue(ctx, Send{Phone: "p1", Body: "b"})
	second := q.Enqueue(ctx, Send{Phone: "p2", Body: "b"})

	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	// Let the first send start, then shut down.
	time.Sleep(5 * time.Millisecond)
	cancel()
	<-done

	res1 := <-first
	if !res1.OK {
		t.Fatalf("in-flight send should complete, got %v", res1.Err)
	}
	res2 := <-second
	if res2.OK || !errors.Is(res2.Err, ErrQueueClosed) {
		t.Fatalf("queued send should fail with ErrQueueClosed, got %+v", res2)
	}
}

func TestQueue_PacingBounds(t *testing.T) {
	q := NewQueue(&scriptedGateway{}, queueLogger(), QueueConfig{
		PacingMin: 10 * time.Millisecond,
		PacingMax: 20 * time.Millisecond,
	})
	for i := 0; i < 50; i++ {
		d := q.pacingDelay()
		if d < 10*time.Millisecond || d > 20*time.Millisecond {
			t.Fatalf("pacing delay %s outside configured bounds", d)
		}
	}

	q = NewQueue(&scriptedGateway{}, queueLogger(), QueueConfig{})
	if d := q.pacingDelay(); d != 0 {
		t.Fatalf("pacing should be disabled by default, got %s", d)
	}
}
