package taskmgr

import (
	"errors"

	"github.com/keepdeck-io/keepdeck/internal/rpc"
)

// ErrNotFound is returned when the daemon reports that the requested plan,
// task, or target does not exist. Callers should check it with errors.Is to
// distinguish a missing entity from a transport failure.
var ErrNotFound = errors.New("entity not found")

// mapNotFound rewrites the daemon's not-found error code to ErrNotFound and
// passes every other error through unchanged.
func mapNotFound(err error) error {
	var ce *rpc.CallError
	if errors.As(err, &ce) && ce.NotFound() {
		return ErrNotFound
	}
	return err
}
