package similarity

import (
	"github.com/zeebo/blake3"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// Fingerprint returns the BLAKE3-256 hash of the patch text exactly as rendered.
func Fingerprint(p domain.Patch) domain.PatchFingerprint {
	return domain.PatchFingerprint(blake3.Sum256([]byte(p.Text)))
}
