package engine

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// maxFrameSize caps a single engine frame. Anything larger means the stream
// is corrupt.
const maxFrameSize = 64 << 20

// writeFrame writes a length-prefixed frame: u32 little-endian payload length
// followed by the payload.
func writeFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one length-prefixed frame.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("engine: frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Command bytes of the engine request protocol.
const (
	cmdSingleSolve byte = 1
	cmdMonteCarlo  byte = 2
)

// encodeRequest builds a request payload: command byte, the u32 scenario
// count for Monte Carlo only, the model descriptor, then the raw float64
// variable vector. Little-endian throughout.
func encodeRequest(cmd byte, scenarios uint32, descriptor []byte, vector []float64) []byte {
	size := 1 + len(descriptor) + 8*len(vector)
	if cmd == cmdMonteCarlo {
		size += 4
	}
	out := make([]byte, 0, size)
	out = append(out, cmd)
	if cmd == cmdMonteCarlo {
		var sc [4]byte
		binary.LittleEndian.PutUint32(sc[:], scenarios)
		out = append(out, sc[:]...)
	}
	out = append(out, descriptor...)
	var f [8]byte
	for _, v := range vector {
		binary.LittleEndian.PutUint64(f[:], math.Float64bits(v))
		out = append(out, f[:]...)
	}
	return out
}
