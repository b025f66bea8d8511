// Package chaterr defines the error kinds shared by the chat pipeline.
//
// Every error that can reach a client is a *Error. Message is safe to show to
// the caller. Err carries the underlying cause and is only ever logged.
package chaterr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindMissingFields
	KindInvalidRequest
	KindUnsupportedProvider
	KindCredentialNotFound
	KindDecryption
	KindConfiguration
	KindNoSuchTool
	KindInvalidToolArguments
	KindToolExecution
	KindToolConfiguration
	KindTimeout
)

var kindNames = map[Kind]string{
	KindUnknown:              "unknown",
	KindMissingFields:        "missing_fields",
	KindInvalidRequest:       "invalid_request",
	KindUnsupportedProvider:  "unsupported_provider",
	KindCredentialNotFound:   "credential_not_found",
	KindDecryption:           "decryption",
	KindConfiguration:        "configuration",
	KindNoSuchTool:           "no_such_tool",
	KindInvalidToolArguments: "invalid_tool_arguments",
	KindToolExecution:        "tool_execution",
	KindToolConfiguration:    "tool_configuration",
	KindTimeout:              "timeout",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Default client-facing messages.
const (
	MsgMissingFields        = "Missing required fields"
	MsgCredentialNotFound   = "API key not found"
	MsgDecryption           = "Invalid API key"
	MsgSecretNotConfigured  = "Encryption secret key not configured"
	MsgUnsupportedProvider  = "Unsupported provider"
	MsgNoSuchTool           = "The model tried to call an unknown tool."
	MsgInvalidToolArguments = "The model called a tool with invalid arguments."
	MsgToolExecution        = "An error occurred during tool execution."
	MsgTimeout              = "The request timed out."
	MsgUnknown              = "An unknown error occurred."
)

// Error is a classified error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error of the given kind with a client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err. The cause is kept for logging but never shown to clients.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns the message that may be sent to a client for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return MsgUnknown
}

// HTTPStatus maps a kind to the status returned before a stream is opened.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindMissingFields, KindInvalidRequest, KindUnsupportedProvider:
		return http.StatusBadRequest
	case KindCredentialNotFound, KindDecryption:
		return http.StatusUnauthorized
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
