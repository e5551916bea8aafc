package api

import (
	"errors"

	"connectrpc.com/connect"
	"github.com/mcdev12/turingroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ReasonHeader names the sentinel behind an error, since several sentinels share a code.
const ReasonHeader = "Turingroom-Reason"

var errorCodes = []struct {
	err    error
	code   connect.Code
	reason string
}{
	{models.ErrNotFound, connect.CodeNotFound, "not_found"},
	{models.ErrForbidden, connect.CodePermissionDenied, "forbidden"},
	{models.ErrInvalidPhase, connect.CodeFailedPrecondition, "invalid_phase"},
	{models.ErrFull, connect.CodeResourceExhausted, "room_full"},
	{models.ErrInvalidState, connect.CodeFailedPrecondition, "invalid_state"},
	{models.ErrInvalidInput, connect.CodeInvalidArgument, "invalid_input"},
}

// connectError converts a registry error into the connect error sent to the caller.
// Errors outside the models taxonomy are logged and hidden behind CodeInternal.
func connectError(err error) *connect.Error {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			connectErr := connect.NewError(c.code, err)
			connectErr.Meta().Set(ReasonHeader, c.reason)
			return connectErr
		}
	}
	log.Error().Err(err).Msg("unhandled request error")
	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}

// SentinelOf maps an error received from the game server back to its models sentinel.
// The reason header picks between sentinels that share a code; without it the code alone
// decides. It returns nil for errors that carry no game meaning, such as CodeUnavailable.
func SentinelOf(err error) error {
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return nil
	}
	if reason := connectErr.Meta().Get(ReasonHeader); reason != "" {
		for _, c := range errorCodes {
			if c.reason == reason {
				return c.err
			}
		}
	}
	for _, c := range errorCodes {
		if c.code == connectErr.Code() {
			return c.err
		}
	}
	return nil
}
