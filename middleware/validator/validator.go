// Package validator rejects malformed questions and post-processes answers.
package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/message"
	"github.com/sweetpotato0/fiberkb/middleware"
)

// DefaultMaxRunes bounds a question when no limit is given.
const DefaultMaxRunes = 2000

// QueryValidator rejects blank or oversized questions and trims the rest.
type QueryValidator struct {
	maxRunes int
}

// NewQueryValidator creates the middleware; maxRunes <= 0 uses DefaultMaxRunes.
func NewQueryValidator(maxRunes int) *QueryValidator {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	return &QueryValidator{maxRunes: maxRunes}
}

// Name returns the middleware name.
func (m *QueryValidator) Name() string {
	return "QueryValidator"
}

// Execute validates ctx.Input.
func (m *QueryValidator) Execute(ctx *middleware.Context, next middleware.Handler) error {
	input := strings.TrimSpace(ctx.Input)
	if input == "" {
		return fmt.Errorf("query cannot be empty: %w", errorskg.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(input); n > m.maxRunes {
		return fmt.Errorf("query has %d characters, limit is %d: %w", n, m.maxRunes, errorskg.ErrInvalidInput)
	}
	ctx.Input = input
	return next(ctx)
}

// FilterFunc transforms a response in place.
type FilterFunc func(*message.Message) error

// ResponseFilter applies a FilterFunc to the response after the handler succeeds.
type ResponseFilter struct {
	filter FilterFunc
}

// NewResponseFilter creates a response filtering middleware.
func NewResponseFilter(filter FilterFunc) *ResponseFilter {
	return &ResponseFilter{filter: filter}
}

// Name returns the middleware name.
func (m *ResponseFilter) Name() string {
	return "ResponseFilter"
}

// Execute filters the response.
func (m *ResponseFilter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if err := next(ctx); err != nil {
		return err
	}
	if ctx.Response != nil && m.filter != nil {
		return m.filter(ctx.Response)
	}
	return nil
}

// TrimResponse strips surrounding whitespace from the answer.
func TrimResponse(msg *message.Message) error {
	msg.Content = strings.TrimSpace(msg.Content)
	return nil
}
