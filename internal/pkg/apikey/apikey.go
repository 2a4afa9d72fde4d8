package apikey

import (
	"strings"

	"github.com/google/uuid"
)

// Prefix marks keys minted by this service.
const Prefix = "bz_"

// New returns a prefixed random (v4) UUID key, e.g. bz_0b7c...-4...
func New() string {
	return Prefix + uuid.NewString()
}

// Valid accepts a bare or prefixed lowercase/uppercase v4 UUID in canonical
// 36-character form.
func Valid(key string) bool {
	raw := strings.TrimPrefix(key, Prefix)
	if len(raw) != 36 {
		return false
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return false
	}
	return u.Version() == 4 && u.Variant() == uuid.RFC4122
}
