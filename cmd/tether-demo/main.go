// tether-demo runs a single traced agent invocation against an
// OpenAI-compatible endpoint, streaming events to stdout.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rwahyudi/tether"
	"github.com/rwahyudi/tether/internal/config"
	"github.com/rwahyudi/tether/mcp"
	"github.com/rwahyudi/tether/provider/openaicompat"
	"github.com/rwahyudi/tether/store/sqlite"
	"github.com/rwahyudi/tether/telemetry"
	"github.com/rwahyudi/tether/tools/fetch"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// 1. Load config
	cfg := config.Load(os.Getenv("TETHER_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Telemetry
	hooks := []any{}
	if cfg.Telemetry.Enabled {
		inst, shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:                cfg.Telemetry.ServiceName,
			ConsoleTrace:               cfg.Telemetry.ConsoleTrace,
			UseExperimentalConventions: cfg.Telemetry.ExperimentalConventions,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer shutdown(context.Background())

		conv := telemetry.ConventionStable
		if cfg.Telemetry.ExperimentalConventions {
			conv = telemetry.ConventionExperimental
		}
		tracer := telemetry.NewTracer(
			telemetry.WithConventions(conv),
			telemetry.WithTracerLogger(logger),
		)
		hooks = append(hooks, telemetry.NewHookAdapter(tracer,
			telemetry.WithInstruments(inst),
			telemetry.WithCycleSpans(true),
			telemetry.WithAdapterLogger(logger),
		))
	}

	// 3. Session store
	store := sqlite.New(cfg.Store.Path, sqlite.WithLogger(logger))
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	hooks = append(hooks, tether.NewSessionRecorder(store, cfg.Store.SessionID))

	history, err := store.Messages(ctx, cfg.Store.SessionID, cfg.Agent.WindowSize)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	// 4. Provider + tools
	provider := openaicompat.New(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Model,
		openaicompat.WithLogger(logger))

	tools := []tether.Tool{fetch.New()}
	if cfg.MCP.Endpoint != "" {
		client := mcp.NewClient(cfg.MCP.Endpoint, mcp.WithLogger(logger))
		if err := client.Initialize(ctx); err != nil {
			return fmt.Errorf("mcp initialize: %w", err)
		}
		remote, err := client.Tools(ctx)
		if err != nil {
			return fmt.Errorf("mcp list tools: %w", err)
		}
		tools = append(tools, remote...)
	}

	// 5. Agent
	agent := tether.New(cfg.Agent.Name, provider,
		tether.WithTools(tools...),
		tether.WithHooks(hooks...),
		tether.WithSystemPrompt(cfg.Agent.SystemPrompt),
		tether.WithMaxCycles(cfg.Agent.MaxCycles),
		tether.WithConversationManager(&tether.SlidingWindowManager{WindowSize: cfg.Agent.WindowSize}),
		tether.WithMessages(history),
		tether.WithLogger(logger),
	)

	// 6. REPL
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "exit" {
			if line == "exit" {
				break
			}
			fmt.Print("> ")
			continue
		}

		events := make(chan tether.Event, 16)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range events {
				switch ev.Type {
				case tether.EventModelDelta:
					fmt.Print(ev.Content)
				case tether.EventToolStart:
					fmt.Printf("\n[tool %s]\n", ev.Name)
				}
			}
		}()

		result, err := agent.Stream(ctx, line, events)
		close(events)
		<-done
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nerror: %v\n", err)
		} else {
			fmt.Printf("\n[%s]\n", result.StopReason)
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}
