package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/ternarybob/concilio/internal/models"
)

// Fingerprint computes the content hash of a normalized result, used to
// recognize replays of an already-applied result. json.Marshal sorts map
// keys, so identical content always hashes identically.
func Fingerprint(result *models.NormalizedResult) string {
	data, err := json.Marshal(result)
	if err != nil {
		// NormalizedResult contains only JSON-marshalable types; decoded
		// payloads cannot reach this path
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
