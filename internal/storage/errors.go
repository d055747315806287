package storage

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrInvalidData     = errors.New("invalid data")
	ErrFileOperation   = errors.New("file operation failed")
)
