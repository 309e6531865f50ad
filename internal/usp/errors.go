package usp

import "errors"

var (
	ErrNilDirective         = errors.New("usp: nil directive")
	ErrUnsupportedDirective = errors.New("usp: unsupported directive")
	ErrNilMessage           = errors.New("usp: nil message")
	ErrMissingMsgID         = errors.New("usp: missing msg_id")
	ErrMissingRequest       = errors.New("usp: missing request")
	ErrMsgTypeMismatch      = errors.New("usp: msg_type does not match request")
	ErrMissingToID          = errors.New("usp: record missing to_id")
)
