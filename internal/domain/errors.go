package domain

import "errors"

// Registry failures. Operations wrap these with context; match with errors.Is.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotAvailable        = errors.New("not available")
	ErrNotFound            = errors.New("not found")
	ErrExpired             = errors.New("expired")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidToken        = errors.New("invalid token")
	ErrInsufficientHistory = errors.New("insufficient history")
)
