// Package mcp serves the fiber knowledge base as Model Context Protocol tools and
// provides a small client for calling MCP servers.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sweetpotato0/fiberkb/pkg/logging"
)

// ErrClientClosed is returned when the client has no live session.
var ErrClientClosed = errors.New("mcp client closed")

// ToolError is returned when the server reports a failed tool call.
type ToolError struct {
	Name    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp tool %s: %s", e.Name, e.Message)
}

// Option configures a client.
type Option func(*clientConfig)

type clientConfig struct {
	implementation   sdkmcp.Implementation
	logger           *slog.Logger
	args             []string
	env              []string
	keepAlive        time.Duration
	terminateTimeout time.Duration
	httpClient       *http.Client
}

// WithClientName sets the name and version advertised to the server.
func WithClientName(name, version string) Option {
	return func(cfg *clientConfig) {
		if name != "" {
			cfg.implementation.Name = name
		}
		if version != "" {
			cfg.implementation.Version = version
		}
	}
}

// WithLogger overrides the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *clientConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithCommandArgs passes arguments to a stdio server command.
func WithCommandArgs(args ...string) Option {
	return func(cfg *clientConfig) {
		cfg.args = append(cfg.args, args...)
	}
}

// WithCommandEnv appends environment variables for a stdio server command.
func WithCommandEnv(env ...string) Option {
	return func(cfg *clientConfig) {
		cfg.env = append(cfg.env, env...)
	}
}

// WithKeepAlive pings the server at interval.
func WithKeepAlive(interval time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.keepAlive = interval
	}
}

// WithTerminateTimeout bounds how long a stdio server may take to exit on Close.
func WithTerminateTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.terminateTimeout = d
	}
}

// WithHTTPClient supplies the HTTP client of the streamable transport.
func WithHTTPClient(client *http.Client) Option {
	return func(cfg *clientConfig) {
		cfg.httpClient = client
	}
}

// Client wraps one SDK client session.
type Client struct {
	session *sdkmcp.ClientSession
	logger  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Connect performs the initialization handshake over transport.
func Connect(ctx context.Context, transport sdkmcp.Transport, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Client{logger: cfg.logger, done: make(chan struct{})}

	sdkClient := sdkmcp.NewClient(&cfg.implementation, &sdkmcp.ClientOptions{
		LoggingMessageHandler: func(_ context.Context, req *sdkmcp.LoggingMessageRequest) {
			if req != nil && req.Params != nil {
				c.logger.Debug("server log", "level", req.Params.Level, "data", req.Params.Data)
			}
		},
		KeepAlive: cfg.keepAlive,
	})
	session, err := sdkClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect failed: %w", err)
	}
	c.session = session
	go c.monitor()
	return c, nil
}

// NewStdioClient launches command and talks to it over stdio.
func NewStdioClient(ctx context.Context, command string, opts ...Option) (*Client, error) {
	if command == "" {
		return nil, errors.New("mcp: command cannot be empty")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cmd := exec.Command(command, cfg.args...)
	if len(cfg.env) > 0 {
		cmd.Env = append(os.Environ(), cfg.env...)
	}
	return Connect(ctx, &sdkmcp.CommandTransport{Command: cmd, TerminateDuration: cfg.terminateTimeout}, opts...)
}

// NewStreamableClient connects to a streamable HTTP endpoint.
func NewStreamableClient(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("mcp: endpoint cannot be empty")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	transport := &sdkmcp.StreamableClientTransport{Endpoint: endpoint}
	if cfg.httpClient != nil {
		transport.HTTPClient = cfg.httpClient
	}
	return Connect(ctx, transport, opts...)
}

// Dial connects to target: an http(s) URL uses the streamable transport, anything
// else is run as a stdio server command line split on whitespace.
func Dial(ctx context.Context, target string, opts ...Option) (*Client, error) {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return NewStreamableClient(ctx, target, opts...)
	}
	fields := strings.Fields(target)
	if len(fields) == 0 {
		return nil, errors.New("mcp: server cannot be empty")
	}
	return NewStdioClient(ctx, fields[0], append([]Option{WithCommandArgs(fields[1:]...)}, opts...)...)
}

// Close ends the session.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.session != nil {
			c.closeErr = c.session.Close()
		}
		close(c.done)
	})
	return c.closeErr
}

// Done is closed when the session ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) monitor() {
	if err := c.session.Wait(); err != nil && !errors.Is(err, sdkmcp.ErrConnectionClosed) {
		c.logger.Warn("session ended with error", "error", err)
	}
	_ = c.Close()
}

// ListTools returns every tool the server exposes, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]*sdkmcp.Tool, error) {
	if c.session == nil {
		return nil, ErrClientClosed
	}
	var tools []*sdkmcp.Tool
	params := &sdkmcp.ListToolsParams{}
	for {
		res, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			return tools, nil
		}
		params.Cursor = res.NextCursor
	}
}

// CallTool invokes name and returns its text output. A tool-reported failure
// is returned as *ToolError.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if c.session == nil {
		return "", ErrClientClosed
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := c.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}
	text := contentText(result.Content)
	if result.IsError {
		if text == "" {
			text = "tool returned error without message"
		}
		return "", &ToolError{Name: name, Message: text}
	}
	return text, nil
}

func contentText(content []sdkmcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case *sdkmcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := c.MarshalJSON(); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func defaultConfig() clientConfig {
	return clientConfig{
		implementation: sdkmcp.Implementation{Name: "fiberkb", Version: "0.1.0"},
		logger:         logging.WithComponent("mcp_client"),
	}
}
