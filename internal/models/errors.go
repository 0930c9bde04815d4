package models

import (
	"errors"
	"fmt"
)

// User related errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
)

// Session related errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Analysis related errors
var (
	ErrAnalysisNotFound  = errors.New("analysis not found")
	ErrDuplicateCaseID   = errors.New("case id already exists")
	ErrInvalidResultName = errors.New("result must be authentic or forged")
)

// FileError reports an upload that was rejected before analysis.
type FileError struct {
	Issue string
}

func (fe FileError) Error() string {
	return fmt.Sprintf("invalid file: %v", fe.Issue)
}
