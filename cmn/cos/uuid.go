// Package cos - ID generation. Federate IDs, message IDs, and the
// tie-breaker suffixes used when two handles would otherwise collide are
// all minted here, the same way AIStore mints bucket/daemon/xaction
// IDs from one shared shortid generator.
package cos

import (
	"strconv"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"

	"github.com/helioscore/cosim/cmn/atomic"
)

const (
	// alphabet for generating short IDs, borrowed from shortid.DEFAULT_ABC
	// with the same "len > 0x3f" property GenTie() below relies on.
	idABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"
)

const (
	LenShortID  = 9 // nominal ID length, per shortid's own guarantee
	lenFederateID = 8
	tooLongID   = 32
)

const (
	mayOnlyContain = "may only contain letters, numbers, dashes (-), underscores (_)"
	OnlyNice       = "must be less than 32 characters and " + mayOnlyContain
)

var (
	sid  *shortid.Shortid
	rtie atomic.Uint32
)

// InitIDGen seeds the process-wide short-ID generator. Call once at
// startup (broker root election time, or core bring-up) with a source of
// entropy such as mono.NanoTime().
func InitIDGen(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, idABC, seed)
}

// GenUUID mints a federate/message/route handle name. Handles themselves
// (wire.InterfaceHandle, wire.FederateID, ...) are 32-bit integers assigned
// by the root broker (see registry); GenUUID instead produces the opaque
// string identifiers used for xaction-like bookkeeping (async task handles,
// query correlation IDs).
func GenUUID() (uuid string) {
	var h, t string
	uuid = sid.MustGenerate()
	if !isAlpha(uuid[0]) {
		tie := int(rtie.Add(1))
		h = string(rune('A' + tie%26))
	}
	c := uuid[len(uuid)-1]
	if c == '-' || c == '_' {
		tie := int(rtie.Add(1))
		t = string(rune('a' + tie%26))
	}
	return h + uuid + t
}

func IsValidUUID(uuid string) bool {
	return len(uuid) >= LenShortID && IsAlphaNice(uuid)
}

func GenFederateID() string { return CryptoRandS(lenFederateID) }

func ValidateFederateID(id string) error {
	if len(id) < lenFederateID {
		return NewErrInvalidAlias("federate ID " + id + " is too short")
	}
	if !IsAlphaNice(id) {
		return NewErrInvalidAlias("federate ID " + id + " must start with a letter, " + OnlyNice)
	}
	return nil
}

// HashRoute derives a stable hash for a name; HashRouteStr's base-36 form
// of it is what transport/inproc.EndpointName uses for names that are not
// alpha-numeric.
func HashRoute(name string) uint64 { return xxhash.Checksum64S(UnsafeB(name), 0) }

func HashRouteStr(name string) string { return strconv.FormatUint(HashRoute(name), 36) }

// GenTie produces a 3-byte tie-breaker. No package in this module calls
// it.
func GenTie() string {
	tie := rtie.Add(1)
	b0 := idABC[tie&0x3f]
	b1 := idABC[-tie&0x3f]
	b2 := idABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// IsAlphaNice: letters/numbers plus internal '-'/'_', matching interface
// and federate key naming rules (local names are prefixed with the
// federate name).
func IsAlphaNice(s string) bool {
	l := len(s)
	if l > tooLongID {
		return false
	}
	for i := 0; i < l; i++ {
		c := s[i]
		if isAlpha(c) || (c >= '0' && c <= '9') {
			continue
		}
		if c != '-' && c != '_' {
			return false
		}
		if i == 0 || i == l-1 {
			return false
		}
	}
	return true
}
