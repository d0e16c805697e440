// Package logger records each chat turn with log/slog.
package logger

import (
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/sweetpotato0/fiberkb/middleware"
	"github.com/sweetpotato0/fiberkb/pkg/logging"
)

// TurnLogger logs the start and outcome of every turn.
type TurnLogger struct {
	logger *slog.Logger
}

// NewTurnLogger creates the middleware; a nil logger uses the "chat_turn" component logger.
func NewTurnLogger(logger *slog.Logger) *TurnLogger {
	if logger == nil {
		logger = logging.WithComponent("chat_turn")
	}
	return &TurnLogger{logger: logger}
}

// Name returns the middleware name.
func (m *TurnLogger) Name() string {
	return "TurnLogger"
}

// Execute logs around next.
func (m *TurnLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	start := time.Now()
	m.logger.Debug("turn received",
		"user", ctx.UserID,
		"conversation", ctx.ConversationID,
		"query_chars", utf8.RuneCountInString(ctx.Input))

	err := next(ctx)
	elapsed := time.Since(start)
	if err != nil {
		m.logger.Warn("turn failed", "conversation", ctx.ConversationID, "duration", elapsed, "error", err)
		return err
	}
	answerChars := 0
	if ctx.Response != nil {
		answerChars = utf8.RuneCountInString(ctx.Response.Content)
	}
	m.logger.Info("turn answered",
		"conversation", ctx.ConversationID,
		"duration", elapsed,
		"answer_chars", answerChars)
	return nil
}
