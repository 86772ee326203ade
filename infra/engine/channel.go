// Package engine owns the external optimization subprocess. Exactly one
// process runs at a time; all requests funnel through a single mailbox
// goroutine in strict FIFO order, so the engine never sees interleaved
// frames and at most one request is in flight.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/tradedesk/routeopt/core/logger"
	"github.com/tradedesk/routeopt/core/solver"
)

// Config locates the engine binary.
type Config struct {
	Binary  string   `json:"binary"`
	Args    []string `json:"args"`
	WorkDir string   `json:"workdir"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Binary == "" {
		c.Binary = "routeopt-engine"
	}
}

// Fixed per-command response deadlines. A timeout does not kill the process;
// it stays warm for later requests.
const (
	singleSolveTimeout = 5 * time.Second
	monteCarloTimeout  = 30 * time.Second
)

type request struct {
	payload []byte
	timeout time.Duration
	reply   chan result
}

type result struct {
	frame []byte
	err   error
}

type spawnFunc func() (proc, error)

// Channel is the serialization point in front of the engine subprocess.
type Channel struct {
	cfg       Config
	log       logger.Logger
	spawn     spawnFunc
	requests  chan request
	quit      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a Channel and starts its mailbox. The subprocess itself is
// spawned lazily on first use.
func New(cfg Config, log logger.Logger) *Channel {
	cfg.SetDefaults()
	c := &Channel{
		cfg: cfg,
		log: log,
		spawn: func() (proc, error) {
			return startExecProc(cfg.Binary, cfg.Args, cfg.WorkDir, log)
		},
		requests: make(chan request),
		quit:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	go c.serve()
	return c
}

// newWithSpawn is used by tests to substitute the subprocess.
func newWithSpawn(spawn spawnFunc, log logger.Logger) *Channel {
	c := &Channel{
		spawn:    spawn,
		log:      log,
		requests: make(chan request),
		quit:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	go c.serve()
	return c
}

var _ solver.Channel = (*Channel)(nil)

// Solve dispatches a deterministic solve and blocks up to the single-solve
// deadline.
func (c *Channel) Solve(ctx context.Context, descriptor []byte, vector []float64) ([]byte, error) {
	payload := encodeRequest(cmdSingleSolve, 0, descriptor, vector)
	return c.dispatch(ctx, payload, singleSolveTimeout)
}

// MonteCarlo dispatches a scenario run and blocks up to the Monte Carlo
// deadline.
func (c *Channel) MonteCarlo(ctx context.Context, descriptor []byte, vector []float64, scenarios int) ([]byte, error) {
	payload := encodeRequest(cmdMonteCarlo, uint32(scenarios), descriptor, vector)
	return c.dispatch(ctx, payload, monteCarloTimeout)
}

func (c *Channel) dispatch(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, error) {
	req := request{payload: payload, timeout: timeout, reply: make(chan result, 1)}
	select {
	case c.requests <- req:
	case <-c.quit:
		return nil, solver.ErrUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.frame, res.err
	case <-c.quit:
		return nil, solver.ErrUnavailable
	case <-ctx.Done():
		// The mailbox will finish (or time out) and discard the reply; the
		// stale-frame bookkeeping keeps the stream aligned.
		return nil, ctx.Err()
	}
}

// Close shuts the channel down and kills any running subprocess. Calls in
// flight or issued afterwards return ErrUnavailable; callers never send on a
// closed channel. Safe to call more than once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.closed
}

// serve is the mailbox goroutine: it owns the subprocess handle, the stale
// frame counter and all framing I/O.
func (c *Channel) serve() {
	defer close(c.closed)
	var (
		cur         proc
		unavailable bool
		stale       int
	)
	defer func() {
		if cur != nil {
			cur.kill()
		}
	}()

	for {
		var req request
		select {
		case <-c.quit:
			return
		case req = <-c.requests:
		}

		if unavailable {
			req.reply <- result{err: solver.ErrUnavailable}
			continue
		}

		// A closed frame stream between requests means the process exited;
		// respawn transparently on this call.
		if cur != nil {
			cur, stale = drainStale(cur, stale)
		}
		if cur == nil {
			p, err := c.spawn()
			if err != nil {
				if isMissingBinary(err) {
					// Non-retryable until operator action: fail every
					// subsequent call fast instead of probing the filesystem.
					unavailable = true
					c.log.Errorf("engine binary missing, channel unavailable: %v", err)
					req.reply <- result{err: solver.ErrUnavailable}
					continue
				}
				req.reply <- result{err: fmt.Errorf("engine spawn: %w", err)}
				continue
			}
			cur = p
			stale = 0
			c.log.Infof("engine subprocess started")
		}

		if err := cur.send(req.payload); err != nil {
			c.log.Errorf("engine write failed: %v", err)
			cur.kill()
			cur = nil
			req.reply <- result{err: fmt.Errorf("engine write: %w", err)}
			continue
		}

		frame, alive, err := awaitReply(cur, &stale, req.timeout)
		if !alive {
			cur.kill()
			cur = nil
		}
		req.reply <- result{frame: frame, err: err}
	}
}

// drainStale discards responses abandoned by timed-out callers that have
// already arrived. Returns a nil proc when the stream turned out closed.
func drainStale(p proc, stale int) (proc, int) {
	for {
		select {
		case frame, ok := <-p.frames():
			if !ok {
				return nil, 0
			}
			if stale > 0 {
				stale--
				continue
			}
			// An unsolicited frame with no timed-out caller on record:
			// protocol violation, drop the process.
			_ = frame
			p.kill()
			return nil, 0
		default:
			return p, stale
		}
	}
}

// awaitReply reads frames until the caller's response surfaces, skipping
// frames owed to earlier timed-out requests. On timeout the pending response
// is recorded as stale so the next request discards it instead of
// mis-attributing it.
func awaitReply(p proc, stale *int, timeout time.Duration) ([]byte, bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case f, ok := <-p.frames():
			if !ok {
				return nil, false, errors.New("engine: subprocess exited mid-request")
			}
			if *stale > 0 {
				*stale--
				continue
			}
			return f, true, nil
		case <-deadline.C:
			*stale++
			return nil, true, solver.ErrTimeout
		}
	}
}

func isMissingBinary(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}
