package client

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/kappi/internal/common"
)

const networkMessage = "Network error. Please check your connection"

// RemoteError is a 4xx answer from the remote service.
type RemoteError struct {
	Status  int
	Message string
	// Kind is an optional more specific sentinel (e.g. ErrAlreadyRegistered).
	Kind error
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Is(target error) bool {
	if target == common.ErrRemoteRejected {
		return true
	}
	return e.Kind != nil && errors.Is(e.Kind, target)
}

// statusMessages overrides the server's message for given status codes.
type statusMessages map[int]string

var (
	loginMessages = statusMessages{
		401: "Invalid email or password",
		404: "Account does not exist",
	}
	registerMessages = statusMessages{
		400: "Email already exists. Please log in instead.",
	}
)

// mapStatus turns a non-2xx status and its decoded message into an error.
func mapStatus(status int, serverMessage string, overrides statusMessages) error {
	if status >= 500 {
		return fmt.Errorf("%w: status %d: %s", common.ErrNetworkUnavailable, status, serverMessage)
	}

	msg := serverMessage
	if m, ok := overrides[status]; ok {
		msg = m
	}
	if msg == "" {
		msg = fmt.Sprintf("request rejected with status %d", status)
	}
	return &RemoteError{Status: status, Message: msg}
}

func transportError(err error) error {
	return fmt.Errorf("%w: %w", common.ErrNetworkUnavailable, err)
}

// UserMessage renders err the way the CLI shows it to a person.
func UserMessage(err error) string {
	var re *RemoteError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &re):
		return re.Message
	case errors.Is(err, common.ErrNetworkUnavailable):
		return networkMessage
	default:
		return err.Error()
	}
}
