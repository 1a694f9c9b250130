// Package id generates identifiers for requests and scheduled jobs.
package id

import (
	"crypto/rand"
	"encoding/binary"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Crockford's Base32 alphabet (no I, L, O or U).
const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewULID returns a 26 character lexicographically sortable identifier:
// a 48-bit millisecond timestamp followed by 80 random bits.
func NewULID() string {
	var raw [16]byte
	binary.BigEndian.PutUint64(raw[:8], uint64(time.Now().UnixMilli())<<16)
	if _, err := rand.Read(raw[6:]); err != nil {
		binary.BigEndian.PutUint64(raw[8:], uint64(time.Now().UnixNano()))
	}

	// 128 bits packed as 26 groups of 5 bits, left-padded with 2 zero bits.
	var out [26]byte
	var acc uint32
	bits := 2
	pos := 0
	for _, b := range raw {
		acc = acc<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out[pos] = crockfordBase32[(acc>>uint(bits))&0x1F]
			pos++
		}
	}
	return string(out[:])
}

// NewJobID returns prefix + "_" + 8 lowercase hex characters,
// for example "email_3f9a0c1d".
func NewJobID(prefix string) string {
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if prefix == "" {
		return short
	}
	return prefix + "_" + short
}
