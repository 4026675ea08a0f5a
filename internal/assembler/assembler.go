// Package assembler translates between an object's logical payload and
// the binary frame chunkstore.Store writes as a single range.
//
// Two codecs are supported: Opaque treats a payload as a single
// indivisible blob (used by the S3 surface, where one PUT is one object).
// Framed wraps one or more sub-blobs into a single length-prefixed frame
// (used by the native surface, where put/append/update store each sub-blob
// of the request as its own single-part frame and the object's content is
// the concatenation, in range order, of every frame's sub-blobs).
package assembler

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrOpaqueSinglePart is returned when Opaque encoding is asked to wrap
// anything other than exactly one part.
var ErrOpaqueSinglePart = errors.New("assembler: opaque mode takes exactly one part")

// ErrTruncatedFrame is returned when a framed blob is shorter than its
// header claims.
var ErrTruncatedFrame = errors.New("assembler: truncated frame")

// Mode selects the wire codec used to pack/unpack a range's bytes.
type Mode int

const (
	// Opaque stores a payload verbatim, with no framing overhead.
	Opaque Mode = iota
	// Framed wraps one or more parts in a length-prefixed envelope.
	Framed
)

// Encode packs parts into the bytes chunkstore.Store.Write should append
// for a single range.
func Encode(mode Mode, parts [][]byte) ([]byte, error) {
	switch mode {
	case Opaque:
		if len(parts) != 1 {
			return nil, ErrOpaqueSinglePart
		}
		return parts[0], nil
	case Framed:
		return encodeFrame(parts), nil
	default:
		return nil, fmt.Errorf("assembler: unknown mode %d", mode)
	}
}

// Decode unpacks the bytes read back from a single range into its parts.
func Decode(mode Mode, raw []byte) ([][]byte, error) {
	switch mode {
	case Opaque:
		return [][]byte{raw}, nil
	case Framed:
		return decodeFrame(raw)
	default:
		return nil, fmt.Errorf("assembler: unknown mode %d", mode)
	}
}

// frame wire format: [uint32 part count][for each part: uint64 length, bytes]
func encodeFrame(parts [][]byte) []byte {
	var buf bytes.Buffer
	var countHdr [4]byte
	binary.BigEndian.PutUint32(countHdr[:], uint32(len(parts)))
	buf.Write(countHdr[:])

	for _, p := range parts {
		var lenHdr [8]byte
		binary.BigEndian.PutUint64(lenHdr[:], uint64(len(p)))
		buf.Write(lenHdr[:])
		buf.Write(p)
	}
	return buf.Bytes()
}

func decodeFrame(raw []byte) ([][]byte, error) {
	r := bytes.NewReader(raw)

	var countHdr [4]byte
	if _, err := io.ReadFull(r, countHdr[:]); err != nil {
		return nil, ErrTruncatedFrame
	}
	count := binary.BigEndian.Uint32(countHdr[:])

	parts := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		var lenHdr [8]byte
		if _, err := io.ReadFull(r, lenHdr[:]); err != nil {
			return nil, ErrTruncatedFrame
		}
		length := binary.BigEndian.Uint64(lenHdr[:])

		part := make([]byte, length)
		if _, err := io.ReadFull(r, part); err != nil {
			return nil, ErrTruncatedFrame
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// Concat flattens a list of per-frame parts (as returned by decoding
// multiple ranges in order) into the object's full logical payload.
func Concat(frames [][][]byte) []byte {
	var buf bytes.Buffer
	for _, parts := range frames {
		for _, p := range parts {
			buf.Write(p)
		}
	}
	return buf.Bytes()
}
