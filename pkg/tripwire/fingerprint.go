package tripwire

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint computes a stable digest of a code unit's source text. Callers
// can precompute and store it, then pass it back via VerifySource to detect
// stale instrumentation assumptions.
func Fingerprint(source string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(source))
}
