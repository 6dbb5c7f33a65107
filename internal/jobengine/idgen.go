package jobengine

import "github.com/google/uuid"

// UUIDGen is the production IDGen, minting RFC 4122 v4 job IDs.
type UUIDGen struct{}

// NewJobID returns a new random UUID string.
func (UUIDGen) NewJobID() string {
	return uuid.NewString()
}
