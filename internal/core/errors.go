package core

import "errors"

// Validation errors are returned synchronously to the caller and never
// alter session state. Transport and negotiation failures from async
// completions are surfaced through observer events instead.
var (
	ErrInvalidState         = errors.New("operation not legal in current state")
	ErrNotFound             = errors.New("not found")
	ErrDuplicateParticipant = errors.New("duplicate participant")

	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrAlreadySharing   = errors.New("screen share already active")
	ErrNotSharing       = errors.New("no screen share active")

	ErrMalformed = errors.New("malformed signaling payload")

	ErrLocalDescription   = errors.New("failed to apply local description")
	ErrRemoteDescription  = errors.New("failed to apply remote description")
	ErrNegotiationTimeout = errors.New("negotiation timed out")

	ErrTokenExpired      = errors.New("call token expired")
	ErrTokenRoomMismatch = errors.New("call token issued for another room")
	ErrTokenInvalid      = errors.New("call token signature invalid")

	ErrTransport = errors.New("media transport error")
)
