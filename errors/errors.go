package errors

import "fmt"

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrPersistence      = fmt.Errorf("persistence failure")
	ErrInvalidPayload   = fmt.Errorf("invalid payload")
	ErrInvalidToken     = fmt.Errorf("invalid or expired token")
	ErrContentTooLong   = fmt.Errorf("message content too long")
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrBackpressure     = fmt.Errorf("send buffer full")
)
