package broadcast

import "errors"

var (
	ErrChannelAlreadyRunning = errors.New("broadcast channel is already running")
	ErrChannelNotRunning     = errors.New("broadcast channel is not running")
	ErrChannelFull           = errors.New("broadcast publish queue is full")
)
