package exception

import "github.com/yanun0323/errors"

var (
	ErrStreamNotConnected = errors.New("stream: not connected")
	ErrStreamAuthFailed   = errors.New("stream: authentication failed")
	ErrStreamClosed       = errors.New("stream: connection closed")
)
