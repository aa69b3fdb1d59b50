// Package refid generates human-readable, globally unique references
// for price decisions, e.g. "PD_0CL2Kwa8kJ2mN4pQ6r". References carry
// a time-sortable base62 timestamp prefix for B-tree index locality
// followed by a cryptographically random suffix.
package refid

import (
	crypto_rand "crypto/rand"
	"strings"
	"time"
)

// Base62 alphabet: 0-9, A-Z, a-z (62 characters)
const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DecisionPrefix is the stable prefix for price decision references.
const DecisionPrefix = "PD"

// randomLength is the length of the random suffix. 12 base62 chars
// carry ~71 bits of entropy, enough that collisions within one
// timestamp second are not a practical concern.
const randomLength = 12

// encodeTimestampBase62 encodes a Unix timestamp (seconds) as a
// 6-character base62 string. Lexicographically sortable for any
// timestamp within ~1800 years of the epoch.
func encodeTimestampBase62(timestampSeconds int64) string {
	n := timestampSeconds
	result := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		result[i] = base62Alphabet[n%62]
		n = n / 62
	}
	return string(result)
}

// randomBase62 generates a random base62 string using rejection
// sampling for uniform distribution: 6 bits are extracted at a time
// and values >= 62 are rejected (~3% rejection rate).
func randomBase62(length int) string {
	bytesNeeded := (length*6)/8 + 4
	bytes := make([]byte, bytesNeeded)
	if _, err := crypto_rand.Read(bytes); err != nil {
		panic("refid: failed to read random bytes: " + err.Error())
	}

	var result strings.Builder
	bitBuffer := uint64(0)
	bitsInBuffer := uint(0)
	byteIndex := 0

	for result.Len() < length {
		for bitsInBuffer < 6 && byteIndex < len(bytes) {
			bitBuffer = (bitBuffer << 8) | uint64(bytes[byteIndex])
			bitsInBuffer += 8
			byteIndex++
		}

		// Ran out of bytes with a partial character buffered
		// (unlikely); refill before extracting so the remaining
		// bits stay unbiased.
		if bitsInBuffer < 6 {
			if _, err := crypto_rand.Read(bytes); err != nil {
				panic("refid: failed to read random bytes: " + err.Error())
			}
			byteIndex = 0
			continue
		}

		value := (bitBuffer >> (bitsInBuffer - 6)) & 0x3f
		bitsInBuffer -= 6

		if value < 62 {
			result.WriteByte(base62Alphabet[value])
		}
	}

	return result.String()
}

// NewDecisionReference returns a fresh decision reference:
// "PD_" + 6-char base62 timestamp + 12-char random suffix.
func NewDecisionReference() string {
	return New(DecisionPrefix)
}

// New returns a prefixed, time-sortable reference with the given
// prefix.
func New(prefix string) string {
	return prefix + "_" + encodeTimestampBase62(time.Now().Unix()) + randomBase62(randomLength)
}
