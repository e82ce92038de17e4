// Command agent-run sends one prompt to a hosted agent, waits for the run to
// finish and prints the conversation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/casualjim/runrelay/agentservice/openai"
	"github.com/casualjim/runrelay/internal/config"
	"github.com/casualjim/runrelay/pkg/slogx"
	"github.com/casualjim/runrelay/session"
	"github.com/casualjim/runrelay/tracing"
	"github.com/casualjim/runrelay/transcript"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:])
	switch {
	case errors.Is(err, session.ErrRunFailed):
		os.Exit(2)
	case err != nil:
		slog.Error("agent-run failed", slogx.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("agent-run", flag.ContinueOnError)
	envFile := fs.String("env", ".env", "environment file to load")
	agentID := fs.String("agent", "", "agent id, overrides AGENT_ID")
	prompt := fs.String("prompt", "", "message to send to the agent")
	markdown := fs.Bool("markdown", false, "render assistant messages as markdown")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *prompt == "" {
		return errors.New("-prompt is required")
	}

	cfg, err := config.Load(ctx, *envFile)
	if err != nil {
		return err
	}
	if *agentID != "" {
		cfg.AgentID = *agentID
	}
	logger := slogx.Console(os.Stderr, cfg.Level())
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		return err
	}

	tel, err := tracing.Setup(ctx, cfg.Tracing())
	if err != nil {
		return err
	}
	defer func() { _ = tel.Shutdown(context.WithoutCancel(ctx)) }()

	agentsCfg := cfg.Agents()
	agentsCfg.Logger = logger
	deps := session.Deps{
		Agents:    openai.New(agentsCfg),
		Telemetry: tel,
		Logger:    logger,
	}
	return once(ctx, deps, cfg.AgentID, *prompt, os.Stdout, *markdown)
}

func once(ctx context.Context, deps session.Deps, agentID, prompt string, out io.Writer, markdown bool) error {
	rend, err := transcript.New(out, transcript.WithMarkdown(markdown))
	if err != nil {
		return err
	}
	deps.Transcript = rend

	outcome, err := session.Blocking(ctx, deps, session.Request{AgentID: agentID, Prompt: prompt})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "thread: %s\n", outcome.ThreadID)
	return nil
}
