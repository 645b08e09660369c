package engine

import "errors"

var (
	ErrInterfaceAlreadySet = errors.New("an interface is already bound")
	ErrNotBound            = errors.New("no interface is bound")
	ErrBindFailed          = errors.New("failed to bind interface")
)
