// Package usercolor assigns a deterministic pastel display colour to a
// new user, computed once at first-seen and never recomputed.
package usercolor

import (
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
)

// processNonce salts the hash per process so two rltbl servers seeded
// with the same usernames don't paint every user the same colour.
var processNonce = uuid.New().String()

// Assign returns a "#rrggbb" pastel colour deterministically derived
// from name (and this process's nonce).
func Assign(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(processNonce))
	_, _ = h.Write([]byte(name))
	sum := h.Sum32()

	// Pastel: blend each channel toward white.
	r := pastel(byte(sum >> 16))
	g := pastel(byte(sum >> 8))
	b := pastel(byte(sum))
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func pastel(c byte) byte {
	return byte((int(c) + 2*255) / 3)
}
