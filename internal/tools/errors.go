package tools

import "errors"

var (
	ErrNotFound      = errors.New("unknown tool")
	ErrAlreadyExists = errors.New("tool already registered")
	ErrEmptyName     = errors.New("tool name is empty")
	ErrInvalidArgs   = errors.New("invalid tool arguments")
	ErrBlocked       = errors.New("blocked by file policy")
	ErrTimeout       = errors.New("tool timed out")
)
