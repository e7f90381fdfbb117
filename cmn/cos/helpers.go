// Package cos - small string/byte helpers used across the runtime.
package cos

import (
	"crypto/rand"
	"strings"
	"unsafe"
)

func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// JoinWords joins URL path segments with "/", skipping empties. No
// package in this module calls it.
func JoinWords(words ...string) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			parts = append(parts, w)
		}
	}
	return strings.Join(parts, "/")
}

// UnsafeB/UnsafeS avoid a copy when the caller guarantees the underlying
// bytes/string outlive the conversion's use - mirrors AIStore's own
// unsafe string<->[]byte helpers, used on the hot wire-decode path.
func UnsafeB(s string) []byte { return unsafe.Slice(unsafe.StringData(s), len(s)) }
func UnsafeS(b []byte) string { return unsafe.String(unsafe.SliceData(b), len(b)) }

const randAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func CryptoRandS(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	out := make([]byte, n)
	for i, c := range b {
		out[i] = randAlphabet[int(c)%len(randAlphabet)]
	}
	return string(out)
}
