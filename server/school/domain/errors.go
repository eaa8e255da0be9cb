package domain

import "errors"

var (
	ErrFetchFailed        = errors.New("fetch failed")
	ErrVerificationFailed = errors.New("verification failed")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
)
