package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/sweetpotato0/fiberkb/mcp"
)

// mcpClientCommands talk to an MCP server, either another fiberkb or any
// server reachable by URL or command line.
func mcpClientCommands(g *globals) []*cli.Command {
	var server, rawArgs string
	serverFlag := &cli.StringFlag{
		Name:        "server",
		Usage:       "http(s) endpoint or stdio command line of the MCP server",
		Value:       "fiberkb mcp",
		Sources:     cli.EnvVars("FIBERKB_MCP_SERVER"),
		Destination: &server,
	}
	return []*cli.Command{
		{
			Name:  "tools",
			Usage: "List the tools an MCP server exposes",
			Flags: []cli.Flag{serverFlag},
			Action: func(ctx context.Context, _ *cli.Command) error {
				client, err := mcp.Dial(ctx, server, mcp.WithClientName("fiberkb", version))
				if err != nil {
					return err
				}
				defer client.Close()
				tools, err := client.ListTools(ctx)
				if err != nil {
					return err
				}
				for _, tool := range tools {
					fmt.Fprintf(g.out, "%s\t%s\n", tool.Name, tool.Description)
				}
				return nil
			},
		},
		{
			Name:      "call",
			Usage:     "Call one tool on an MCP server and print its text output",
			ArgsUsage: "<tool>",
			Flags: []cli.Flag{serverFlag,
				&cli.StringFlag{Name: "args", Usage: "Tool arguments as a JSON object", Value: "{}", Destination: &rawArgs},
			},
			Action: func(ctx context.Context, c *cli.Command) error {
				name := strings.TrimSpace(c.Args().First())
				if name == "" {
					return fmt.Errorf("a tool name is required")
				}
				args, err := parseToolArgs(rawArgs)
				if err != nil {
					return err
				}
				client, err := mcp.Dial(ctx, server, mcp.WithClientName("fiberkb", version))
				if err != nil {
					return err
				}
				defer client.Close()
				out, err := client.CallTool(ctx, name, args)
				if err != nil {
					return err
				}
				fmt.Fprintln(g.out, out)
				return nil
			},
		},
	}
}

// parseToolArgs decodes a JSON object; an empty string means no arguments.
func parseToolArgs(raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	return args, nil
}
