package mtp

import "errors"

var (
	ErrNoTransport     = errors.New("mtp: no transport selected")
	ErrQueueFull       = errors.New("mtp: queue full")
	ErrClosed          = errors.New("mtp: hub closed")
	ErrNotStarted      = errors.New("mtp: hub not started")
	ErrUnknownBroker   = errors.New("mtp: no stomp broker configured for instance")
	ErrMissingCoAPHost = errors.New("mtp: coap host missing")
	ErrNilMessage      = errors.New("mtp: nil message")
)
