package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"

	"github.com/sweetpotato0/fiberkb/chat"
	"github.com/sweetpotato0/fiberkb/fiber"
	"github.com/sweetpotato0/fiberkb/importer"
	"github.com/sweetpotato0/fiberkb/kb"
	"github.com/sweetpotato0/fiberkb/mcp"
	"github.com/sweetpotato0/fiberkb/middleware/limiter"
	mwlogger "github.com/sweetpotato0/fiberkb/middleware/logger"
	"github.com/sweetpotato0/fiberkb/middleware/validator"
	"github.com/sweetpotato0/fiberkb/pkg/logging"
	"github.com/sweetpotato0/fiberkb/prompt"
	"github.com/sweetpotato0/fiberkb/rag/intent"
	"github.com/sweetpotato0/fiberkb/rag/retrieval"
)

// withApp builds the components for one command and closes them afterwards.
func withApp(g *globals, fn func(ctx context.Context, c *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		a, err := g.build(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logging.Logger().Warn("failed to close resources", "error", err)
			}
		}()
		return fn(ctx, c, a)
	}
}

func cmdMCP(g *globals) *cli.Command {
	var transport, addr string
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve search_fibers, search_documents, detect_intent and clear_cache as MCP tools",
		Commands: mcpClientCommands(g),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "transport",
				Usage:       "stdio or http",
				Value:       "stdio",
				Sources:     cli.EnvVars("FIBERKB_MCP_TRANSPORT"),
				Destination: &transport,
			},
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "Listen address of the http transport",
				Value:       ":8080",
				Sources:     cli.EnvVars("FIBERKB_MCP_ADDR"),
				Destination: &addr,
			},
		},
		Action: withApp(g, func(ctx context.Context, _ *cli.Command, a *app) error {
			server := mcp.NewServer("fiberkb", version, mcp.Backends{
				Fibers:     a.engine,
				Documents:  a.documents,
				Intents:    intent.NewDetector(a.vocabulary),
				Vocabulary: a.vocabulary,
			})
			logger := logging.WithComponent("mcp")

			switch transport {
			case "stdio":
				logger.Info("serving MCP over stdio")
				return server.Run(ctx, &sdkmcp.StdioTransport{})
			case "http":
				handler := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server { return server }, nil)
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				logger.Info("serving MCP over streamable HTTP", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			default:
				return fmt.Errorf("unknown transport %q (want stdio or http)", transport)
			}
		}),
	}
}

func cmdAsk(g *globals) *cli.Command {
	var (
		conversation, user string
		profile            prompt.Profile
		interactive        bool
		rateLimit          int
		promptsDir         string
	)
	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer fiber questions grounded in the database",
		ArgsUsage: "<question>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "conversation", Usage: "Continue an existing conversation", Destination: &conversation},
			&cli.StringFlag{Name: "user", Usage: "User id owning the conversation", Value: "cli", Destination: &user},
			&cli.StringFlag{Name: "role", Usage: "researcher, industry_expert, student or undergraduate", Destination: &profile.ClientType},
			&cli.StringFlag{Name: "specialization", Destination: &profile.Specialization},
			&cli.StringFlag{Name: "goal", Usage: "Primary goal of the user", Destination: &profile.PrimaryGoal},
			&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "Read questions from stdin until EOF", Destination: &interactive},
			&cli.IntFlag{Name: "rate-limit", Usage: "Maximum questions per minute", Value: 30, Destination: &rateLimit},
			&cli.StringFlag{
				Name:        "prompts-dir",
				Usage:       "Directory of *.tmpl files overriding the built-in prompts",
				Sources:     cli.EnvVars("FIBERKB_PROMPTS_DIR"),
				Destination: &promptsDir,
			},
		},
		Action: withApp(g, func(ctx context.Context, c *cli.Command, a *app) error {
			completer, release, err := g.completer(ctx)
			if err != nil {
				return err
			}
			defer release()
			prompts := prompt.NewManager()
			if promptsDir != "" {
				names, err := prompts.LoadFS(os.DirFS(promptsDir))
				if err != nil {
					return err
				}
				logging.Logger().Debug("loaded prompt overrides", "dir", promptsDir, "templates", names)
			}
			svc := chat.New(a.engine, completer, a.sessions,
				chat.WithKnowledge(a.documents),
				chat.WithPrompts(prompts),
				chat.WithContextBuilder(g.contextBuilder()),
				chat.WithHistoryWindow(g.cfg.Retrieval.HistoryWindow),
				chat.WithMiddleware(
					mwlogger.NewTurnLogger(nil),
					validator.NewQueryValidator(0),
					limiter.NewRateLimiter(rateLimit, time.Minute),
					validator.NewResponseFilter(validator.TrimResponse),
				),
			)

			ask := func(question string) error {
				resp, err := svc.Answer(ctx, chat.Request{
					ConversationID: conversation,
					UserID:         user,
					Query:          question,
					Profile:        profile,
				})
				if err != nil {
					return err
				}
				conversation = resp.ConversationID
				fmt.Fprintln(g.out, resp.Answer)
				for _, img := range resp.Images {
					fmt.Fprintf(g.out, "[structure] %s: %s\n", img.FiberName, img.ImageURL)
				}
				return nil
			}

			if !interactive {
				question := strings.Join(c.Args().Slice(), " ")
				if err := ask(question); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "conversation: %s\n", conversation)
				return nil
			}
			scanner := bufio.NewScanner(os.Stdin)
			for fmt.Fprint(g.out, "> "); scanner.Scan(); fmt.Fprint(g.out, "> ") {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if err := ask(line); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
			}
			return scanner.Err()
		}),
	}
}

func cmdSearch(g *globals) *cli.Command {
	var (
		limit     int
		threshold float64
		category  string
		fiberIDs  string
		published bool
	)
	limitFlag := &cli.IntFlag{Name: "limit", Usage: "Maximum results", Destination: &limit}
	thresholdFlag := &cli.FloatFlag{Name: "threshold", Usage: "Minimum cosine similarity", Destination: &threshold}
	idsFlag := &cli.StringFlag{Name: "fiber-ids", Usage: "Comma-separated internal fiber ids", Destination: &fiberIDs}

	return &cli.Command{
		Name:  "search",
		Usage: "Search fibers or knowledge-base documents",
		Commands: []*cli.Command{
			{
				Name:      "fibers",
				Usage:     "Hybrid fiber search",
				ArgsUsage: "<query>",
				Flags:     []cli.Flag{limitFlag, thresholdFlag, idsFlag},
				Action: withApp(g, func(ctx context.Context, c *cli.Command, a *app) error {
					ids, err := parseIDs(fiberIDs)
					if err != nil {
						return err
					}
					matches, err := a.engine.SearchFibers(ctx, strings.Join(c.Args().Slice(), " "), retrieval.Filter{
						Scope:     fiber.Scope{FiberIDs: ids},
						Threshold: threshold,
						Limit:     limit,
					})
					if err != nil {
						return err
					}
					for i, m := range matches {
						fmt.Fprintf(g.out, "%d. %s (%s) %.3f [%s]\n", i+1, m.Fiber.Name, m.Fiber.FiberID, m.Similarity, m.ContentType)
					}
					return nil
				}),
			},
			{
				Name:      "documents",
				Aliases:   []string{"docs"},
				Usage:     "Knowledge-base document search",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{limitFlag, thresholdFlag, idsFlag,
					&cli.StringFlag{Name: "category", Destination: &category},
					&cli.BoolFlag{Name: "published", Usage: "Only published documents", Destination: &published},
				},
				Action: withApp(g, func(ctx context.Context, c *cli.Command, a *app) error {
					ids, err := parseIDs(fiberIDs)
					if err != nil {
						return err
					}
					matches, err := a.documents.Search(ctx, strings.Join(c.Args().Slice(), " "), kb.Filter{
						PublishedOnly: published,
						Category:      category,
						FiberIDs:      ids,
						Threshold:     threshold,
						Limit:         limit,
					})
					if err != nil {
						return err
					}
					enc := json.NewEncoder(g.out)
					enc.SetIndent("", "  ")
					return enc.Encode(matches)
				}),
			},
		},
	}
}

func cmdImport(g *globals) *cli.Command {
	var sheet string
	return &cli.Command{
		Name:      "import",
		Usage:     "Import fibers from an .xlsx workbook",
		ArgsUsage: "<workbook.xlsx>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sheet", Value: importer.DefaultSheet, Destination: &sheet},
		},
		Action: withApp(g, func(ctx context.Context, c *cli.Command, a *app) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("workbook path is required")
			}
			report, err := importer.New(a.store, importer.WithSheet(sheet), importer.WithVocabulary(a.vocabulary)).ImportFile(ctx, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(g.out, "created %d, updated %d, skipped %d, errors %d\n",
				report.Created, report.Updated, report.Skipped, len(report.Errors))
			for _, e := range report.Errors {
				fmt.Fprintln(g.out, "  "+e.Error())
			}
			return nil
		}),
	}
}

func cmdEmbedFibers(g *globals) *cli.Command {
	var (
		force bool
		name  string
	)
	return &cli.Command{
		Name:  "embed-fibers",
		Usage: "Create missing fiber embeddings, or regenerate them with --force",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Replace existing embeddings", Destination: &force},
			&cli.StringFlag{Name: "fiber", Usage: "Only embed the fiber with this name", Destination: &name},
		},
		Action: withApp(g, func(ctx context.Context, _ *cli.Command, a *app) error {
			gen := fiber.NewGenerator(a.store, a.store, a.embedder, g.cfg.Embedding.Model)
			if name != "" {
				rec, err := a.store.FiberByName(ctx, name)
				if err != nil {
					return err
				}
				n, err := gen.Generate(ctx, rec, force)
				if err != nil {
					return err
				}
				fmt.Fprintf(g.out, "stored %d embeddings for %s\n", n, rec.Name)
				return nil
			}
			n, err := gen.GenerateAll(ctx, force)
			fmt.Fprintf(g.out, "stored %d embeddings\n", n)
			return err
		}),
	}
}

func cmdDoc(g *globals) *cli.Command {
	var (
		id                                   int64
		title, file, cat, subcat, tags, fids string
		publish                              bool
		actor                                string
	)
	idFlag := &cli.Int64Flag{Name: "id", Usage: "Document id", Required: true, Destination: &id}
	actorFlag := &cli.StringFlag{Name: "actor", Usage: "Who performs the change", Value: "cli", Destination: &actor}
	contentFlags := []cli.Flag{
		&cli.StringFlag{Name: "title", Destination: &title},
		&cli.StringFlag{Name: "file", Usage: "File holding the body (text or HTML)", Destination: &file},
		&cli.StringFlag{Name: "category", Destination: &cat},
		&cli.StringFlag{Name: "subcategory", Destination: &subcat},
		&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags", Destination: &tags},
		&cli.StringFlag{Name: "fiber-ids", Usage: "Comma-separated related fiber ids", Destination: &fids},
		&cli.BoolFlag{Name: "publish", Destination: &publish},
		actorFlag,
	}

	return &cli.Command{
		Name:  "doc",
		Usage: "Manage knowledge-base documents",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create and index a document",
				Flags: contentFlags,
				Action: withApp(g, func(ctx context.Context, _ *cli.Command, a *app) error {
					content, err := readBody(file)
					if err != nil {
						return err
					}
					ids, err := parseIDs(fids)
					if err != nil {
						return err
					}
					doc, err := a.indexer.Create(ctx, kb.NewDocument{
						Title:       title,
						Content:     content,
						Category:    cat,
						Subcategory: subcat,
						Tags:        splitList(tags),
						FiberIDs:    ids,
						IsPublished: publish,
						Actor:       actor,
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(g.out, "created document %d\n", doc.ID)
					return nil
				}),
			},
			{
				Name:  "update",
				Usage: "Change fields of a document; a new body is re-indexed",
				Flags: append([]cli.Flag{idFlag}, contentFlags...),
				Action: withApp(g, func(ctx context.Context, c *cli.Command, a *app) error {
					patch := kb.Patch{Actor: actor}
					if c.IsSet("title") {
						patch.Title = &title
					}
					if c.IsSet("file") {
						content, err := readBody(file)
						if err != nil {
							return err
						}
						patch.Content = &content
					}
					if c.IsSet("category") {
						patch.Category = &cat
					}
					if c.IsSet("subcategory") {
						patch.Subcategory = &subcat
					}
					if c.IsSet("tags") {
						t := splitList(tags)
						patch.Tags = &t
					}
					if c.IsSet("fiber-ids") {
						ids, err := parseIDs(fids)
						if err != nil {
							return err
						}
						patch.FiberIDs = &ids
					}
					if c.IsSet("publish") {
						patch.IsPublished = &publish
					}
					doc, err := a.indexer.Update(ctx, id, patch)
					if err != nil {
						return err
					}
					fmt.Fprintf(g.out, "updated document %d\n", doc.ID)
					return nil
				}),
			},
			{
				Name:  "delete",
				Usage: "Delete a document and its chunks",
				Flags: []cli.Flag{idFlag, actorFlag},
				Action: withApp(g, func(ctx context.Context, _ *cli.Command, a *app) error {
					if err := a.indexer.Delete(ctx, id, actor); err != nil {
						return err
					}
					fmt.Fprintf(g.out, "deleted document %d\n", id)
					return nil
				}),
			},
			{
				Name:  "audit",
				Usage: "Print the audit log of a document",
				Flags: []cli.Flag{idFlag},
				Action: withApp(g, func(ctx context.Context, _ *cli.Command, a *app) error {
					entries, err := a.store.AuditLog(ctx, id)
					if err != nil {
						return err
					}
					enc := json.NewEncoder(g.out)
					enc.SetIndent("", "  ")
					return enc.Encode(entries)
				}),
			},
		},
	}
}

func cmdCacheClear(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "cache-clear",
		Usage: "Drop the cached fiber-name vocabulary",
		Action: withApp(g, func(ctx context.Context, _ *cli.Command, a *app) error {
			if err := a.vocabulary.Invalidate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(g.out, "fiber vocabulary cleared")
			return nil
		}),
	}
}

func readBody(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid fiber id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
