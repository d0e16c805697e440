// Package middleware wraps one chat turn in a chain of interceptors.
package middleware

import (
	"context"

	"github.com/sweetpotato0/fiberkb/message"
)

// Context carries one turn through the chain.
type Context struct {
	// Input is the user question.
	Input          string
	UserID         string
	ConversationID string

	// Response is set by the final handler.
	Response *message.Message

	// Metadata passes values between middlewares.
	Metadata map[string]any

	context context.Context
}

// NewContext creates a turn context bound to ctx.
func NewContext(ctx context.Context) *Context {
	return &Context{
		Metadata: make(map[string]any),
		context:  ctx,
	}
}

// Context returns the underlying context.Context.
func (c *Context) Context() context.Context {
	if c.context == nil {
		return context.Background()
	}
	return c.context
}

// Middleware intercepts a turn. Returning an error stops the chain.
type Middleware interface {
	Name() string
	Execute(ctx *Context, next Handler) error
}

// Handler passes control to the next middleware.
type Handler func(*Context) error

// Func adapts a function to Middleware.
type Func struct {
	name string
	fn   func(*Context, Handler) error
}

// NewFunc names fn as a middleware.
func NewFunc(name string, fn func(*Context, Handler) error) *Func {
	return &Func{name: name, fn: fn}
}

// Name returns the middleware name.
func (f *Func) Name() string { return f.name }

// Execute runs fn.
func (f *Func) Execute(ctx *Context, next Handler) error { return f.fn(ctx, next) }

// Chain is an ordered sequence of middlewares.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a chain; nil entries are skipped.
func NewChain(middlewares ...Middleware) *Chain {
	c := &Chain{}
	for _, m := range middlewares {
		c.Add(m)
	}
	return c
}

// Add appends a middleware to the chain.
func (c *Chain) Add(m Middleware) *Chain {
	if m != nil {
		c.middlewares = append(c.middlewares, m)
	}
	return c
}

// Names lists the middlewares in execution order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.middlewares))
	for i, m := range c.middlewares {
		names[i] = m.Name()
	}
	return names
}

// Execute runs every middleware in order, then final.
func (c *Chain) Execute(ctx *Context, final Handler) error {
	return c.execute(ctx, 0, final)
}

func (c *Chain) execute(ctx *Context, index int, final Handler) error {
	if index >= len(c.middlewares) {
		return final(ctx)
	}
	next := func(ctx *Context) error {
		return c.execute(ctx, index+1, final)
	}
	return c.middlewares[index].Execute(ctx, next)
}
