package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewRendererID returns an identifier for a renderer connection instance.
// Renderers written in other runtimes pick their own ids; this is used by
// Go-side renderers and test doubles.
func NewRendererID() string {
	return "renderer-" + CreateULID()
}

// NewConnectionID identifies one dev server channel between open and teardown.
func NewConnectionID() string {
	return "conn-" + CreateULID()
}

// Timestamp extracts the creation time from a ULID string. The second return
// value is false when id is not a valid ULID.
func Timestamp(id string) (time.Time, bool) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()), true
}
