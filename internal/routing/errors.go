package routing

import (
	"errors"
	"fmt"
)

// ErrUnroutableReply is returned when an owner/operator reply cannot be
// attributed to any user. Callers must report it to the replier rather than
// drop the reply.
var ErrUnroutableReply = errors.New("reply cannot be attributed to a user")

// ProvisionError reports a failed topic provisioning attempt. Nothing is
// persisted for the user when it occurs; the inbound message must be retried
// or surfaced.
type ProvisionError struct {
	UserID int64
	Err    error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("failed to provision topic for user %d: %v", e.UserID, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}
