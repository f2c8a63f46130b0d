package errors

import "fmt"

var (
	ErrRoomNotFound        = fmt.Errorf("room not found")
	ErrParticipantNotFound = fmt.Errorf("participant not found")
	ErrInvalidPassword     = fmt.Errorf("invalid password")
	ErrUnauthorized        = fmt.Errorf("participant is not allowed to join")
	ErrTokenExhausted      = fmt.Errorf("no free room token available")
	ErrInvalidHashFormat   = fmt.Errorf("invalid hash format")
	ErrWorkerPanic         = fmt.Errorf("worker panic")
)
