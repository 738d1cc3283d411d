// Package idgen provides pluggable ID generation for readmark.
//
// Every constructor that mints identifiers (highlights, pages, bridge
// messages) accepts a Generator, so the ID strategy is decided at startup
// and tests can substitute a deterministic one.
package idgen

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// NanoID returns a Generator that produces base-36 IDs of the given length.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Timestamped returns a Generator that produces IDs in the format
// "20060102T150405.000Z_<suffix>" where suffix comes from the inner generator.
// now may be nil, in which case time.Now is used.
func Timestamped(now func() time.Time, gen Generator) Generator {
	if now == nil {
		now = time.Now
	}
	return func() string {
		return now().UTC().Format("20060102T150405.000Z") + "_" + gen()
	}
}

// Sequence returns a Generator yielding prefix1, prefix2, ... It is meant
// for tests that need predictable identifiers.
func Sequence(prefix string) Generator {
	var n atomic.Uint64
	return func() string {
		return prefix + strconv.FormatUint(n.Add(1), 10)
	}
}

// Highlight is the generator used for highlight identifiers: time plus a
// random suffix, e.g. "hl_20260219T101500.123Z_k3j9x0q2".
func Highlight() Generator {
	return Prefixed("hl_", Timestamped(nil, NanoID(8)))
}

// Default is UUIDv7 (RFC 9562): time-sortable and globally unique.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns it or an error.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID: %w", err)
	}
	return u.String(), nil
}
