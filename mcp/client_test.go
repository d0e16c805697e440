package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sweetpotato0/fiberkb/rag/intent"
)

func TestDialStreamableEndpoint(t *testing.T) {
	server := NewServer("fiberkb-test", "", Backends{Intents: intent.NewDetector(nil)})
	handler := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server { return server }, nil)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx := context.Background()
	c, err := Dial(ctx, srv.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	tools, err := c.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != ToolDetectIntent {
		t.Fatalf("unexpected tools: %v", tools)
	}
}

func TestDialRejectsEmptyServer(t *testing.T) {
	if _, err := Dial(context.Background(), "   "); err == nil {
		t.Fatal("expected an error for an empty server")
	}
}
