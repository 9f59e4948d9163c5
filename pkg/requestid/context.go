package requestid

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type contextKey string

const (
	// requestIDKey is the context key for the request ID
	requestIDKey contextKey = "request_id"
)

var (
	// ErrNoRequestID is returned when no request ID is found in the context
	ErrNoRequestID = errors.New("no request ID found in context")
)

// New generates a fresh request ID.
func New() string {
	return uuid.NewString()
}

// WithRequestID returns a new context with the given request ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request ID from the context
func GetRequestID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(requestIDKey).(string)
	if !ok || id == "" {
		return "", ErrNoRequestID
	}
	return id, nil
}

// HasRequestID returns true if the context carries a request ID
func HasRequestID(ctx context.Context) bool {
	_, err := GetRequestID(ctx)
	return err == nil
}
