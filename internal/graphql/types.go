// Package graphql is a minimal client for the Unraid GraphQL API, which
// upswatch can use in place of upsd as its UPS device source.
package graphql

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthorized is returned when the API rejects the configured key.
var ErrUnauthorized = errors.New("graphql: API key rejected")

// ErrNoAPIKey is returned by Execute when no key was configured.
var ErrNoAPIKey = errors.New("graphql: API key is not configured")

// Client executes a query and returns the raw "data" object.
type Client interface {
	Execute(ctx context.Context, query string, variables map[string]any) ([]byte, error)
}

// Location is a position in the query document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLError is one entry of a response's "errors" array.
type GraphQLError struct {
	Message   string     `json:"message"`
	Path      []any      `json:"path,omitempty"`
	Locations []Location `json:"locations,omitempty"`
}

// ResponseError carries the GraphQL-level errors of a response that the
// server answered with a 2xx status.
type ResponseError struct {
	Errors []GraphQLError
}

func (e *ResponseError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ge := range e.Errors {
		msgs[i] = ge.Message
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("graphql: unexpected HTTP status %d", e.StatusCode)
}
