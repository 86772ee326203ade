package engine

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"

	"github.com/tradedesk/routeopt/core/logger"
)

// proc abstracts one running engine subprocess. frames() is closed when the
// process exits or its stdout breaks, which is the channel's uniform "down"
// notification regardless of exit code.
type proc interface {
	send(payload []byte) error
	frames() <-chan []byte
	kill()
}

// execProc runs the real engine binary, framing requests over stdin and
// responses over stdout.
type execProc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   chan []byte
	log   logger.Logger
}

func startExecProc(binary string, args []string, workdir string, log logger.Logger) (proc, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("engine binary %q: %w", binary, err)
	}
	cmd := exec.Command(path, args...)
	cmd.Dir = workdir
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}
	p := &execProc{cmd: cmd, stdin: stdin, out: make(chan []byte, 4), log: log}
	go p.readLoop(stdout)
	return p, nil
}

func (p *execProc) readLoop(stdout io.Reader) {
	r := bufio.NewReader(stdout)
	for {
		frame, err := readFrame(r)
		if err != nil {
			if err != io.EOF {
				p.log.Warnf("engine stdout closed: %v", err)
			}
			close(p.out)
			// Reap the process so it never lingers as a zombie.
			_ = p.cmd.Wait()
			return
		}
		p.out <- frame
	}
}

func (p *execProc) send(payload []byte) error { return writeFrame(p.stdin, payload) }

func (p *execProc) frames() <-chan []byte { return p.out }

func (p *execProc) kill() {
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}
