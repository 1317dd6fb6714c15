package fountain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrForeignSession is returned for a symbol carrying a different
	// session id than the decoder was built for.
	ErrForeignSession = errors.New("symbol belongs to a different session")

	// ErrInconsistentSymbol is returned when a symbol's structural
	// parameters disagree with those learned from the first symbol.
	ErrInconsistentSymbol = errors.New("symbol parameters inconsistent with stream")

	// ErrIncomplete is returned when the payload is requested before all
	// source blocks are resolved.
	ErrIncomplete = errors.New("decoding incomplete")
)

// pendingSymbol is a received symbol not yet reduced to degree one. The
// covered set shrinks as source blocks resolve.
type pendingSymbol struct {
	covered map[int]struct{}
	data    []byte
}

// Decoder reconstructs a payload from an unordered, possibly-duplicated
// stream of symbols by incremental peeling: every new symbol is reduced
// against already-solved blocks, and any symbol that reaches degree one
// resolves a block, which in turn may unlock pending symbols.
//
// All methods are safe for concurrent use; each Ingest call does a bounded
// amount of XOR work so callers never stall a scanning loop.
type Decoder struct {
	mu sync.Mutex

	sessionID uuid.UUID

	// Learned from the first accepted symbol.
	k          int
	blockSize  int
	payloadLen int
	table      *solitonTable

	solved  map[int][]byte
	pending []*pendingSymbol
	seen    map[uint32]struct{}
}

// NewDecoder creates a decoder bound to a session id. Structural decoding
// parameters arrive with the first symbol.
func NewDecoder(sessionID uuid.UUID) *Decoder {
	return &Decoder{
		sessionID: sessionID,
		solved:    make(map[int][]byte),
		seen:      make(map[uint32]struct{}),
	}
}

// Ingest feeds one symbol into the decoder. It reports whether the symbol
// counted as new (duplicates and already-redundant symbols return false)
// and whether decoding is now complete.
func (d *Decoder) Ingest(s *Symbol) (counted bool, complete bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s.SessionID != d.sessionID {
		return false, false, ErrForeignSession
	}

	if d.table == nil {
		if s.K < 1 || s.BlockSize < 1 || s.PayloadLen < 1 || s.PayloadLen > s.K*s.BlockSize {
			return false, false, fmt.Errorf("%w: k=%d blockSize=%d payloadLen=%d",
				ErrInconsistentSymbol, s.K, s.BlockSize, s.PayloadLen)
		}
		d.k = s.K
		d.blockSize = s.BlockSize
		d.payloadLen = s.PayloadLen
		d.table = newSolitonTable(s.K)
	} else if s.K != d.k || s.BlockSize != d.blockSize || s.PayloadLen != d.payloadLen {
		return false, false, fmt.Errorf("%w: got k=%d blockSize=%d payloadLen=%d",
			ErrInconsistentSymbol, s.K, s.BlockSize, s.PayloadLen)
	}

	if len(s.Data) != d.blockSize {
		return false, false, fmt.Errorf("%w: data length %d", ErrInconsistentSymbol, len(s.Data))
	}

	if _, dup := d.seen[s.Index]; dup {
		return false, d.completeLocked(), nil
	}
	d.seen[s.Index] = struct{}{}

	// Reduce the symbol against every already-solved block.
	covered := make(map[int]struct{})
	data := make([]byte, d.blockSize)
	copy(data, s.Data)
	for _, b := range d.table.blockIndices(s.Index) {
		if solvedData, ok := d.solved[b]; ok {
			xorInto(data, solvedData)
		} else {
			covered[b] = struct{}{}
		}
	}

	switch len(covered) {
	case 0:
		// Fully redundant after reduction; still counted as a received
		// unique symbol.
	case 1:
		for b := range covered {
			d.resolveLocked(b, data)
		}
	default:
		d.pending = append(d.pending, &pendingSymbol{covered: covered, data: data})
	}

	return true, d.completeLocked(), nil
}

// resolveLocked records a newly solved block and peels the pending set,
// cascading through any symbols that drop to degree one.
func (d *Decoder) resolveLocked(block int, data []byte) {
	type resolution struct {
		block int
		data  []byte
	}
	queue := []resolution{{block, data}}

	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]

		if _, done := d.solved[r.block]; done {
			continue
		}
		d.solved[r.block] = r.data

		remaining := d.pending[:0]
		for _, p := range d.pending {
			if _, ok := p.covered[r.block]; ok {
				xorInto(p.data, r.data)
				delete(p.covered, r.block)
			}
			switch len(p.covered) {
			case 0:
				// Exhausted; drop it.
			case 1:
				for b := range p.covered {
					queue = append(queue, resolution{b, p.data})
				}
			default:
				remaining = append(remaining, p)
			}
		}
		d.pending = remaining
	}
}

func (d *Decoder) completeLocked() bool {
	return d.table != nil && len(d.solved) == d.k
}

// Complete reports whether every source block has been resolved.
func (d *Decoder) Complete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completeLocked()
}

// Payload reassembles and returns the original bytes. ErrIncomplete until
// Complete is true.
func (d *Decoder) Payload() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.completeLocked() {
		return nil, ErrIncomplete
	}

	out := make([]byte, 0, d.k*d.blockSize)
	for i := 0; i < d.k; i++ {
		out = append(out, d.solved[i]...)
	}
	return out[:d.payloadLen], nil
}

// UniqueSymbols returns the number of distinct symbols ingested so far.
func (d *Decoder) UniqueSymbols() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// K returns the source block count, or zero before the first symbol.
func (d *Decoder) K() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.k
}

// ExpectedParts is the advisory total the receiver should plan for, or
// zero before the first symbol.
func (d *Decoder) ExpectedParts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.table == nil {
		return 0
	}
	return expectedParts(d.k)
}

// HasMetadata reports whether the decoder has learned the stream's
// structural parameters yet.
func (d *Decoder) HasMetadata() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table != nil
}

// Reset discards all decode state, keeping the session binding.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.k = 0
	d.blockSize = 0
	d.payloadLen = 0
	d.table = nil
	d.solved = make(map[int][]byte)
	d.pending = nil
	d.seen = make(map[uint32]struct{})
}
