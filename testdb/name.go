package testdb

import (
	"github.com/google/uuid"
)

// GenerateName returns prefix followed by a random version 4 UUID in its
// canonical text form. Names generated concurrently, in this process or any
// other, collide only with negligible probability.
func GenerateName(prefix string) string {
	return prefix + uuid.NewString()
}
