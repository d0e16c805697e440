package validator

import (
	"context"
	"errors"
	"strings"
	"testing"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/message"
	"github.com/sweetpotato0/fiberkb/middleware"
)

func pass(*middleware.Context) error { return nil }

func TestQueryValidator(t *testing.T) {
	v := NewQueryValidator(10)

	for _, input := range []string{"", "   ", strings.Repeat("a", 11)} {
		ctx := middleware.NewContext(context.Background())
		ctx.Input = input
		if err := v.Execute(ctx, pass); !errors.Is(err, errorskg.ErrInvalidInput) {
			t.Fatalf("input %q: expected ErrInvalidInput, got %v", input, err)
		}
	}

	ctx := middleware.NewContext(context.Background())
	ctx.Input = "  cotton  "
	if err := v.Execute(ctx, pass); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.Input != "cotton" {
		t.Fatalf("input not trimmed: %q", ctx.Input)
	}
}

func TestDefaultLimit(t *testing.T) {
	if NewQueryValidator(0).maxRunes != DefaultMaxRunes {
		t.Fatal("expected default limit")
	}
}

func TestResponseFilter(t *testing.T) {
	f := NewResponseFilter(TrimResponse)
	ctx := middleware.NewContext(context.Background())
	err := f.Execute(ctx, func(c *middleware.Context) error {
		c.Response = message.NewMessage(message.RoleAssistant, "  answer \n")
		return nil
	})
	if err != nil || ctx.Response.Content != "answer" {
		t.Fatalf("got %q, %v", ctx.Response.Content, err)
	}

	boom := errors.New("boom")
	if err := f.Execute(middleware.NewContext(context.Background()), func(*middleware.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}
