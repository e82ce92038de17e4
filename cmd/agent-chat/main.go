// Command agent-chat is an interactive chat with a hosted agent. Every turn
// is streamed; the notifications of the run are written as JSON lines to
// stdout, or published to NATS when NATS_URL is set. With -offline the
// agent is an in-process echo service and no endpoint is needed.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/casualjim/runrelay/agentservice"
	"github.com/casualjim/runrelay/agentservice/memory"
	"github.com/casualjim/runrelay/agentservice/openai"
	"github.com/casualjim/runrelay/internal/broker"
	"github.com/casualjim/runrelay/internal/config"
	"github.com/casualjim/runrelay/notify"
	"github.com/casualjim/runrelay/pkg/natsx"
	"github.com/casualjim/runrelay/pkg/slogx"
	"github.com/casualjim/runrelay/session"
	"github.com/casualjim/runrelay/tracing"
	"github.com/casualjim/runrelay/transcript"
	"github.com/fatih/color"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		slog.Error("agent-chat failed", slogx.Error(err))
		os.Exit(1)
	}
}

// offlineAgentID is used by -offline when no agent id is configured.
const offlineAgentID = "asst_offline"

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("agent-chat", flag.ContinueOnError)
	envFile := fs.String("env", ".env", "environment file to load")
	agentID := fs.String("agent", "", "agent id, overrides AGENT_ID")
	format := fs.String("format", "json", "notification output when NATS is not used: json or console")
	markdown := fs.Bool("markdown", false, "render assistant messages as markdown")
	offline := fs.Bool("offline", false, "chat with an in-process echo agent instead of the agent service")
	if err := fs.Parse(args); err != nil {
		return err
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

	var agents agentservice.Client
	if *offline {
		if cfg.AgentID == "" {
			cfg.AgentID = offlineAgentID
		}
		agents = memory.New(memory.WithAgents(agentservice.Agent{ID: cfg.AgentID, Name: "echo"}))
		slog.InfoContext(ctx, "running offline against the echo agent", slogx.AgentID(cfg.AgentID))
	} else {
		if err := cfg.Validate(); err != nil {
			return err
		}
		agentsCfg := cfg.Agents()
		agentsCfg.Logger = logger
		agents = openai.New(agentsCfg)
	}

	tel, err := tracing.Setup(ctx, cfg.Tracing())
	if err != nil {
		return err
	}
	defer func() { _ = tel.Shutdown(context.WithoutCancel(ctx)) }()

	var sink notify.Sink
	switch {
	case cfg.NATSURL != "":
		nc, err := natsx.NewClient(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()
		sink = broker.ThreadSink(broker.NATS(nc))
		slog.InfoContext(ctx, "publishing notifications to NATS", slog.String("subject", broker.SubjectPrefix+"<thread id>"))
	case *format == "console":
		sink = transcript.Console(out)
	default:
		sink = notify.JSONLines(out)
	}

	rend, err := transcript.New(out, transcript.WithMarkdown(*markdown))
	if err != nil {
		return err
	}

	deps := session.Deps{
		Agents:     agents,
		Telemetry:  tel,
		Sink:       notify.Composite(sink, notify.Logging(logger)),
		Transcript: rend,
		Logger:     logger,
	}
	return chat(ctx, deps, cfg.AgentID, in, out)
}

// chat reads prompts from in until EOF or "exit" and runs one streamed turn
// per prompt, all on the same thread.
func chat(ctx context.Context, deps session.Deps, agentID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	var threadID string
	for {
		fmt.Fprintf(out, "%s: ", color.CyanString("You"))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if strings.EqualFold(prompt, "exit") {
			return nil
		}

		outcome, err := session.Streaming(ctx, deps, session.Request{
			AgentID:  agentID,
			ThreadID: threadID,
			Prompt:   prompt,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		threadID = outcome.ThreadID
	}
}
