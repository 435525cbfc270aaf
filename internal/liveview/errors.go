package liveview

import "errors"

var (
	ErrInvalidArgument = errors.New("liveview: invalid argument")
	ErrProtocol        = errors.New("liveview: protocol error")
	ErrEndOfStream     = errors.New("liveview: end of stream")
	ErrTransport       = errors.New("liveview: transport error")
	ErrCancelled       = errors.New("liveview: read cancelled")
)
