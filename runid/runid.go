// Package runid generates the opaque identifiers threaded through a run:
// run IDs, checkpoint IDs, and event IDs.
package runid

import "github.com/google/uuid"

// New returns a fresh opaque identifier suitable for a run, checkpoint, or event.
func New() string {
	return uuid.NewString()
}
