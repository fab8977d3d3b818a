package service

import "errors"

var (
	// ErrDuplicateEmail is returned when registering an email that is already in use.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicateUsername is returned when registering a taken username.
	ErrDuplicateUsername = errors.New("username already taken")
	// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("incorrect username or password")
	// ErrInvalidToken indicates a token that failed verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWrongTokenType indicates a valid token presented for the wrong use.
	ErrWrongTokenType = errors.New("invalid token type")
	// ErrUnknownSubject indicates a valid token whose user no longer exists.
	ErrUnknownSubject = errors.New("user not found")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTaskNotFound is returned for missing tasks and tasks of other users.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInternal wraps unexpected store or signing failures.
	ErrInternal = errors.New("internal error")
)
