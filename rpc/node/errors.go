package node

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/pKV/lib/verify"
)

var (
	// ErrKeyDots is returned for keys that contain the namespace separator
	ErrKeyDots = errors.New("key cannot include dots")
	// ErrEmptyKey is returned for empty keys
	ErrEmptyKey = errors.New("key cannot be empty")
	// ErrNotLoggedIn is returned by writes without a signed-in user
	ErrNotLoggedIn = errors.New("you need to log in before you can PUT")
	// ErrUserExists is returned by SignUp if the username is taken
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned by SignIn for unknown usernames
	ErrUserNotFound = errors.New("could not find user")
	// ErrInvalidPassword is returned by SignIn if the account cannot be decrypted
	ErrInvalidPassword = errors.New("invalid password")
	// ErrFunctionNotFound is returned if no peer provides a function
	ErrFunctionNotFound = errors.New("function not found")
	// ErrFunctionFailed wraps the error message returned by a remote function
	ErrFunctionFailed = errors.New("function failed")
	// ErrTimeout is returned when no peer answered in time
	ErrTimeout = errors.New("request timed out")
	// ErrNotFound is returned for keys that are neither stored locally nor reachable
	ErrNotFound = errors.New("key not found")
	// ErrTypeMismatch is returned when a key holds another kind of value
	ErrTypeMismatch = errors.New("key holds a different crdt type")
	// ErrClosed is returned after the node was closed
	ErrClosed = errors.New("node is closed")
)

// RejectedError is returned when the node itself rejects an entry it was asked to write
type RejectedError struct {
	Result verify.Result
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("entry rejected: %s", e.Result)
}
