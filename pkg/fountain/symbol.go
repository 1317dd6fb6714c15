// Package fountain implements a systematic rateless (LT) code used to move
// an opaque payload over a lossy, one-way visual channel. The encoder emits
// an unbounded stream of symbols; the decoder reconstructs the payload from
// any sufficiently large subset of them, in any order, with duplicates.
package fountain

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// FramePrefix tags every fountain frame string so scanners can cheaply
// discard unrelated QR content.
const FramePrefix = "VB1:"

const (
	frameVersion    = 0x01
	frameTypeSymbol = 0x02

	// headerSize is the fixed byte length of the symbol header:
	// version(1) + type(1) + session(16) + index(4) + k(2) +
	// blockSize(2) + payloadLen(4) + metaLen(2).
	headerSize = 32

	// maxMetaSize bounds the opaque per-frame metadata.
	maxMetaSize = 255
)

// MaxBlockSize bounds a single symbol so the frame still fits in a
// scannable QR code.
const MaxBlockSize = 1 << 15

// MaxSourceBlocks is the largest block count K the frame header can carry.
const MaxSourceBlocks = 1<<16 - 1

// ErrMalformedFrame is returned for input that is not a well-formed
// fountain frame. Callers scanning a camera feed treat it as noise and
// keep scanning.
var ErrMalformedFrame = errors.New("malformed frame")

// Symbol is one encoded fountain symbol. Its block composition is not
// carried on the wire: both sides derive it deterministically from Index
// and K, so the header stays compact.
//
// Meta is opaque to the codec. It is replicated into every frame because
// the channel is lossy and unordered: whatever bootstrap data the session
// layer needs (here, the sender's ephemeral public key) must be
// recoverable from any single frame.
type Symbol struct {
	SessionID  uuid.UUID
	Index      uint32
	K          int
	BlockSize  int
	PayloadLen int
	Meta       []byte
	Data       []byte
}

// EncodeFrame serializes a symbol to its transport string form.
func EncodeFrame(s *Symbol) string {
	buf := make([]byte, headerSize+len(s.Meta)+len(s.Data))
	buf[0] = frameVersion
	buf[1] = frameTypeSymbol
	copy(buf[2:18], s.SessionID[:])
	binary.BigEndian.PutUint32(buf[18:22], s.Index)
	binary.BigEndian.PutUint16(buf[22:24], uint16(s.K))
	binary.BigEndian.PutUint16(buf[24:26], uint16(s.BlockSize))
	binary.BigEndian.PutUint32(buf[26:30], uint32(s.PayloadLen))
	binary.BigEndian.PutUint16(buf[30:32], uint16(len(s.Meta)))
	copy(buf[headerSize:], s.Meta)
	copy(buf[headerSize+len(s.Meta):], s.Data)

	return FramePrefix + base64.RawURLEncoding.EncodeToString(buf)
}

// DecodeFrame parses a transport string back into a symbol. Any structural
// problem yields ErrMalformedFrame; the caller decides whether that is
// fatal (it is not, during scanning).
func DecodeFrame(frame string) (*Symbol, error) {
	if !strings.HasPrefix(frame, FramePrefix) {
		return nil, fmt.Errorf("%w: missing prefix", ErrMalformedFrame)
	}

	raw, err := base64.RawURLEncoding.DecodeString(frame[len(FramePrefix):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: truncated header", ErrMalformedFrame)
	}
	if raw[0] != frameVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedFrame, raw[0])
	}
	if raw[1] != frameTypeSymbol {
		return nil, fmt.Errorf("%w: unexpected frame type %d", ErrMalformedFrame, raw[1])
	}

	s := &Symbol{
		Index:      binary.BigEndian.Uint32(raw[18:22]),
		K:          int(binary.BigEndian.Uint16(raw[22:24])),
		BlockSize:  int(binary.BigEndian.Uint16(raw[24:26])),
		PayloadLen: int(binary.BigEndian.Uint32(raw[26:30])),
	}
	copy(s.SessionID[:], raw[2:18])
	metaLen := int(binary.BigEndian.Uint16(raw[30:32]))

	if s.K < 1 || s.BlockSize < 1 || s.PayloadLen < 1 || metaLen > maxMetaSize {
		return nil, fmt.Errorf("%w: invalid parameters", ErrMalformedFrame)
	}
	if len(raw)-headerSize != metaLen+s.BlockSize {
		return nil, fmt.Errorf("%w: body length %d does not match header", ErrMalformedFrame, len(raw)-headerSize)
	}
	if metaLen > 0 {
		s.Meta = raw[headerSize : headerSize+metaLen]
	}
	s.Data = raw[headerSize+metaLen:]

	return s, nil
}
