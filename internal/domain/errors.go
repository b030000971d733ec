package domain

import (
	"github.com/victornm/travelquiz/internal/errors"
)

var (
	ErrInvalidPin    = errors.New(errors.CodeInvalidArgument, errors.WithReason("INVALID_PIN"), errors.WithMessagef("invalid pin"))
	ErrInvalidName   = errors.New(errors.CodeInvalidArgument, errors.WithReason("INVALID_NAME"), errors.WithMessagef("invalid player name"))
	ErrInvalidChoice = errors.New(errors.CodeInvalidArgument, errors.WithReason("INVALID_CHOICE"), errors.WithMessagef("choice does not belong to the question"))
	ErrInvalidTime   = errors.New(errors.CodeInvalidArgument, errors.WithReason("INVALID_TIME"), errors.WithMessagef("elapsed time must not be negative"))
	ErrInvalidIndex  = errors.New(errors.CodeInvalidArgument, errors.WithReason("INVALID_INDEX"), errors.WithMessagef("question index must not be negative"))

	ErrRoomNotFound    = errors.New(errors.CodeNotFound, errors.WithReason("ROOM_NOT_FOUND"), errors.WithMessagef("room not found"))
	ErrPlayerNotFound  = errors.New(errors.CodeNotFound, errors.WithReason("PLAYER_NOT_FOUND"), errors.WithMessagef("player not found"))
	ErrContentNotFound = errors.New(errors.CodeNotFound, errors.WithReason("CONTENT_NOT_FOUND"), errors.WithMessagef("content not found"))

	ErrNameTaken = errors.New(errors.CodeAlreadyExists, errors.WithReason("NAME_TAKEN"), errors.WithMessagef("player name already taken"))
	// ErrPinTaken is an allocation conflict, room creation retries with another pin.
	ErrPinTaken = errors.New(errors.CodeAlreadyExists, errors.WithReason("PIN_TAKEN"), errors.WithMessagef("pin bound to another room"))

	ErrNotHost = errors.New(errors.CodePermissionDenied, errors.WithReason("NOT_HOST"), errors.WithMessagef("only the host can do this"))

	ErrRoomAlreadyStarted = errors.New(errors.CodeFailedPrecondition, errors.WithReason("ROOM_ALREADY_STARTED"), errors.WithMessagef("quiz already started"))
	ErrRoomNotActive      = errors.New(errors.CodeFailedPrecondition, errors.WithReason("ROOM_NOT_ACTIVE"), errors.WithMessagef("room is not active"))
	ErrNotReady           = errors.New(errors.CodeFailedPrecondition, errors.WithReason("NOT_READY"), errors.WithMessagef("round is still running"))
	ErrNotEnoughPlayers   = errors.New(errors.CodeFailedPrecondition, errors.WithReason("NOT_ENOUGH_PLAYERS"), errors.WithMessagef("not enough players"))

	ErrStaleSubmission = errors.New(errors.CodeAborted, errors.WithReason("STALE_SUBMISSION"), errors.WithMessagef("question is not the current one"))
)
