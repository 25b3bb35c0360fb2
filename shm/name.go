package shm

import (
	"errors"

	"github.com/google/uuid"
)

// errNotFound is the sentinel wrapped by platform attach implementations
// when the named OS block does not exist.
var errNotFound = errors.New("shm: no such block")

// generateName produces a process-unique, OS-legal shared-memory name.
func generateName() string {
	return "appose-shm-" + uuid.NewString()
}
