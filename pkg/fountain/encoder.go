package fountain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DefaultBlockSize keeps a single frame comfortably inside a
// medium-error-correction QR code.
const DefaultBlockSize = 256

// expectedOverhead is the redundancy factor baked into ExpectedParts. It is
// advisory: receivers use it for progress estimation, never as a limit.
const expectedOverhead = 1.4

// ErrEmptyPayload is returned when an encoder is built over zero bytes.
var ErrEmptyPayload = errors.New("payload is empty")

// ErrPayloadTooLarge is returned when the payload needs more source blocks
// than the frame header can address.
var ErrPayloadTooLarge = errors.New("payload too large")

// Encoder produces an unbounded sequence of fountain symbols over a fixed
// payload. It never terminates on its own: the sender keeps polling Next
// until the receiver signals it has scanned enough.
type Encoder struct {
	sessionID  uuid.UUID
	k          int
	blockSize  int
	payloadLen int
	blocks     [][]byte
	table      *solitonTable

	mu   sync.Mutex
	next uint32
}

// NewEncoder splits the payload into fixed-size source blocks (the last one
// zero-padded) and prepares the degree distribution.
func NewEncoder(sessionID uuid.UUID, payload []byte, blockSize int) (*Encoder, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if blockSize < 1 || blockSize > MaxBlockSize {
		return nil, fmt.Errorf("block size must be between 1 and %d, got %d", MaxBlockSize, blockSize)
	}

	k := (len(payload) + blockSize - 1) / blockSize
	if k > MaxSourceBlocks {
		return nil, fmt.Errorf("%w: needs %d blocks of %d bytes, limit is %d",
			ErrPayloadTooLarge, k, blockSize, MaxSourceBlocks)
	}
	blocks := make([][]byte, k)
	for i := 0; i < k; i++ {
		block := make([]byte, blockSize)
		copy(block, payload[i*blockSize:])
		blocks[i] = block
	}

	return &Encoder{
		sessionID:  sessionID,
		k:          k,
		blockSize:  blockSize,
		payloadLen: len(payload),
		blocks:     blocks,
		table:      newSolitonTable(k),
	}, nil
}

// K returns the number of source blocks.
func (e *Encoder) K() int {
	return e.k
}

// PayloadLen returns the unpadded payload length in bytes.
func (e *Encoder) PayloadLen() int {
	return e.payloadLen
}

// ExpectedParts is the advisory symbol count a receiver should plan for
// under nominal loss. The encoder happily emits far more.
func (e *Encoder) ExpectedParts() int {
	return expectedParts(e.k)
}

func expectedParts(k int) int {
	n := int(float64(k) * expectedOverhead)
	if n < k {
		n = k
	}
	return n
}

// Next returns the symbol at the current cursor and advances it. Safe for
// concurrent use; each call is cheap (a handful of XORs).
func (e *Encoder) Next() *Symbol {
	e.mu.Lock()
	index := e.next
	e.next++
	e.mu.Unlock()

	return e.SymbolAt(index)
}

// SymbolAt builds the symbol for an arbitrary index without touching the
// cursor. Systematic indices (< K) are plain block copies.
func (e *Encoder) SymbolAt(index uint32) *Symbol {
	data := make([]byte, e.blockSize)
	for _, b := range e.table.blockIndices(index) {
		xorInto(data, e.blocks[b])
	}

	return &Symbol{
		SessionID:  e.sessionID,
		Index:      index,
		K:          e.k,
		BlockSize:  e.blockSize,
		PayloadLen: e.payloadLen,
		Data:       data,
	}
}

func xorInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}
