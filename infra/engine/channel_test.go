package engine

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	corelogger "github.com/tradedesk/routeopt/core/logger"
	"github.com/tradedesk/routeopt/core/solver"
)

type testLogger struct{}

func (testLogger) Debugf(string, ...any)         {}
func (testLogger) Debugw(string, map[string]any) {}
func (testLogger) Infof(string, ...any)          {}
func (testLogger) Warnf(string, ...any)          {}
func (testLogger) Errorf(string, ...any)         {}

var _ corelogger.Logger = testLogger{}

// fakeProc scripts subprocess behavior per request.
type fakeProc struct {
	mu       sync.Mutex
	requests [][]byte
	out      chan []byte
	respond  func(req []byte) ([]byte, bool) // frame, whether to reply
	delay    time.Duration
	dead     bool
}

func newFakeProc(respond func([]byte) ([]byte, bool)) *fakeProc {
	return &fakeProc{out: make(chan []byte, 4), respond: respond}
}

func (p *fakeProc) send(payload []byte) error {
	p.mu.Lock()
	if p.dead {
		p.mu.Unlock()
		return errors.New("broken pipe")
	}
	p.requests = append(p.requests, payload)
	delay := p.delay
	p.mu.Unlock()
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		if frame, ok := p.respond(payload); ok {
			p.mu.Lock()
			dead := p.dead
			p.mu.Unlock()
			if !dead {
				p.out <- frame
			}
		}
	}()
	return nil
}

func (p *fakeProc) frames() <-chan []byte { return p.out }

func (p *fakeProc) kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dead {
		p.dead = true
		close(p.out)
	}
}

func (p *fakeProc) exit() { p.kill() }

func echoResponder(req []byte) ([]byte, bool) { return append([]byte{0}, req[0]), true }

func TestChannelSolveRoundTrip(t *testing.T) {
	p := newFakeProc(echoResponder)
	c := newWithSpawn(func() (proc, error) { return p, nil }, testLogger{})
	defer c.Close()

	resp, err := c.Solve(context.Background(), []byte{0xDE}, []float64{1})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if len(resp) != 2 || resp[1] != cmdSingleSolve {
		t.Fatalf("unexpected response %v", resp)
	}
}

func TestChannelSerializesRequests(t *testing.T) {
	p := newFakeProc(echoResponder)
	p.delay = 50 * time.Millisecond
	c := newWithSpawn(func() (proc, error) { return p, nil }, testLogger{})
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Solve(context.Background(), []byte{1}, nil); err != nil {
				t.Errorf("solve: %v", err)
			}
		}()
	}
	wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) != 4 {
		t.Fatalf("%d requests reached the process", len(p.requests))
	}
}

func TestChannelMissingBinaryFailsFastForever(t *testing.T) {
	spawns := 0
	c := newWithSpawn(func() (proc, error) {
		spawns++
		return nil, exec.ErrNotFound
	}, testLogger{})
	defer c.Close()

	for i := 0; i < 3; i++ {
		_, err := c.Solve(context.Background(), []byte{1}, nil)
		if !errors.Is(err, solver.ErrUnavailable) {
			t.Fatalf("call %d: %v, want ErrUnavailable", i, err)
		}
	}
	if spawns != 1 {
		t.Fatalf("spawn retried %d times after missing binary", spawns)
	}
}

func TestChannelRespawnsAfterExit(t *testing.T) {
	var procs []*fakeProc
	c := newWithSpawn(func() (proc, error) {
		p := newFakeProc(echoResponder)
		procs = append(procs, p)
		return p, nil
	}, testLogger{})
	defer c.Close()

	if _, err := c.Solve(context.Background(), []byte{1}, nil); err != nil {
		t.Fatalf("first solve: %v", err)
	}
	procs[0].exit()
	time.Sleep(20 * time.Millisecond)

	if _, err := c.Solve(context.Background(), []byte{2}, nil); err != nil {
		t.Fatalf("solve after crash: %v", err)
	}
	if len(procs) != 2 {
		t.Fatalf("expected transparent respawn, %d processes spawned", len(procs))
	}
}

func TestChannelExitMidRequestSurfacesError(t *testing.T) {
	p := newFakeProc(func([]byte) ([]byte, bool) { return nil, false })
	c := newWithSpawn(func() (proc, error) { return p, nil }, testLogger{})
	defer c.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Solve(context.Background(), []byte{1}, nil)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	p.exit()
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected error when subprocess dies mid-request")
		}
	case <-time.After(time.Second):
		t.Fatal("call never returned")
	}
}

// slowThenEcho answers the first request late and subsequent ones promptly,
// exercising the stale-frame discipline after a timeout.
func TestChannelTimeoutKeepsProcessWarmAndDrainsStaleFrame(t *testing.T) {
	var n int
	var mu sync.Mutex
	p := newFakeProc(nil)
	p.respond = func(req []byte) ([]byte, bool) {
		mu.Lock()
		n++
		first := n == 1
		mu.Unlock()
		if first {
			go func() {
				time.Sleep(150 * time.Millisecond)
				p.mu.Lock()
				dead := p.dead
				p.mu.Unlock()
				if !dead {
					p.out <- []byte{0xEE} // the stray late response
				}
			}()
			return nil, false
		}
		return []byte{0, req[0]}, true
	}

	spawns := 0
	c := newWithSpawn(func() (proc, error) { spawns++; return p, nil }, testLogger{})
	defer c.Close()

	// Force a short deadline through the internal dispatch path.
	_, err := c.dispatch(context.Background(), encodeRequest(cmdSingleSolve, 0, []byte{1}, nil), 50*time.Millisecond)
	if !errors.Is(err, solver.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	time.Sleep(200 * time.Millisecond) // the stray response lands

	resp, err := c.Solve(context.Background(), []byte{2}, nil)
	if err != nil {
		t.Fatalf("solve after timeout: %v", err)
	}
	if len(resp) != 2 || resp[0] != 0 {
		t.Fatalf("late frame mis-attributed to next call: % X", resp)
	}
	if spawns != 1 {
		t.Fatalf("timeout killed the process: %d spawns", spawns)
	}
}

func TestChannelSolveAfterClose(t *testing.T) {
	p := newFakeProc(echoResponder)
	c := newWithSpawn(func() (proc, error) { return p, nil }, testLogger{})

	if _, err := c.Solve(context.Background(), []byte{1}, nil); err != nil {
		t.Fatalf("solve before close: %v", err)
	}
	c.Close()

	for i := 0; i < 3; i++ {
		_, err := c.Solve(context.Background(), []byte{2}, nil)
		if !errors.Is(err, solver.ErrUnavailable) {
			t.Fatalf("call %d after close: %v, want ErrUnavailable", i, err)
		}
	}
	// Close is idempotent.
	c.Close()
}

func TestChannelCloseDuringInFlightSolve(t *testing.T) {
	p := newFakeProc(echoResponder)
	p.delay = 100 * time.Millisecond
	c := newWithSpawn(func() (proc, error) { return p, nil }, testLogger{})

	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, err := c.Solve(context.Background(), []byte{1}, nil)
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	c.Close()

	for i := 0; i < 4; i++ {
		select {
		case err := <-errs:
			if err != nil && !errors.Is(err, solver.ErrUnavailable) {
				t.Fatalf("unexpected error racing close: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("caller blocked across close")
		}
	}
}
