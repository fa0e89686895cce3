package errors

import (
	goerrors "errors"
	"fmt"
)

var (
	ErrAuthRequired         = fmt.Errorf("authentication required")
	ErrInvalidState         = fmt.Errorf("invalid state")
	ErrRoomNotFound         = fmt.Errorf("room not found")
	ErrMalformedEnvelope    = fmt.Errorf("malformed envelope")
	ErrBackpressureExceeded = fmt.Errorf("backpressure exceeded")

	ErrConnectionNotFound = fmt.Errorf("connection not found")
	ErrHeartbeatTimeout   = fmt.Errorf("heartbeat timeout")
	ErrServerShutdown     = fmt.Errorf("server shutdown")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
)

// Wire codes carried by the error envelope.
const (
	CodeAuthRequired         = "AUTH_REQUIRED"
	CodeInvalidState         = "INVALID_STATE"
	CodeRoomNotFound         = "ROOM_NOT_FOUND"
	CodeMalformedEnvelope    = "MALFORMED_ENVELOPE"
	CodeBackpressureExceeded = "BACKPRESSURE_EXCEEDED"
	CodeInternal             = "INTERNAL"
)

// Code maps an error to the code sent back to clients.
func Code(err error) string {
	switch {
	case goerrors.Is(err, ErrAuthRequired), goerrors.Is(err, ErrInvalidToken):
		return CodeAuthRequired
	case goerrors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case goerrors.Is(err, ErrRoomNotFound):
		return CodeRoomNotFound
	case goerrors.Is(err, ErrMalformedEnvelope):
		return CodeMalformedEnvelope
	case goerrors.Is(err, ErrBackpressureExceeded):
		return CodeBackpressureExceeded
	default:
		return CodeInternal
	}
}

// Fatal reports whether the error must end the connection it happened on.
func Fatal(err error) bool {
	return goerrors.Is(err, ErrAuthRequired) ||
		goerrors.Is(err, ErrBackpressureExceeded) ||
		goerrors.Is(err, ErrHeartbeatTimeout)
}

func Is(err, target error) bool {
	return goerrors.Is(err, target)
}
