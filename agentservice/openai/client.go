// Package openai implements agentservice.Client on the Assistants API of
// openai-go. Azure AI Foundry agent endpoints speak the same protocol and are
// reached through Config.BaseURL and Config.APIVersion.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/casualjim/runrelay/agentservice"
	"github.com/casualjim/runrelay/dispatch"
	"github.com/casualjim/runrelay/pkg/slogx"
	"github.com/casualjim/runrelay/runevents"
	"github.com/go-openapi/strfmt"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"
)

const defaultPollInterval = time.Second

type Config struct {
	// BaseURL overrides the service endpoint, e.g. an Azure AI project URL.
	BaseURL string
	APIKey  string
	// APIVersion switches to Azure style requests: the key travels in the
	// api-key header and every request carries an api-version query.
	APIVersion   string
	PollInterval time.Duration
	Logger       *slog.Logger
}

func (c Config) requestOptions() []option.RequestOption {
	var ro []option.RequestOption
	if c.BaseURL != "" {
		ro = append(ro, option.WithBaseURL(c.BaseURL))
	}
	switch {
	case c.APIVersion != "":
		ro = append(ro, option.WithQuery("api-version", c.APIVersion))
		if c.APIKey != "" {
			ro = append(ro, option.WithHeader("api-key", c.APIKey))
		}
	case c.APIKey != "":
		ro = append(ro, option.WithAPIKey(c.APIKey))
	}
	return ro
}

var _ agentservice.Client = (*Client)(nil)

type Client struct {
	client openai.Client
	poll   time.Duration
	logger *slog.Logger
}

// New creates a Client. Extra request options are applied after the ones
// derived from cfg.
func New(cfg Config, extra ...option.RequestOption) *Client {
	ro := append(cfg.requestOptions(), extra...)
	c := &Client{
		client: openai.NewClient(ro...),
		poll:   cfg.PollInterval,
		logger: cfg.Logger,
	}
	if c.poll <= 0 {
		c.poll = defaultPollInterval
	}
	if c.logger == nil {
		c.logger = slog.Default().With(slogx.LoggerName("runrelay.agentservice.openai"))
	}
	return c
}

func notFound(err error, what string) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", what, agentservice.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (c *Client) GetAgent(ctx context.Context, agentID string) (agentservice.Agent, error) {
	asst, err := c.client.Beta.Assistants.Get(ctx, agentID)
	if err != nil {
		return agentservice.Agent{}, notFound(err, "failed to get agent "+agentID)
	}
	obj := gjson.Parse(asst.RawJSON())
	return agentservice.Agent{
		ID:           obj.Get("id").String(),
		Name:         obj.Get("name").String(),
		Model:        obj.Get("model").String(),
		Instructions: obj.Get("instructions").String(),
	}, nil
}

func (c *Client) CreateThread(ctx context.Context) (runevents.Thread, error) {
	th, err := c.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return runevents.Thread{}, fmt.Errorf("failed to create thread: %w", err)
	}
	obj := gjson.Parse(th.RawJSON())
	thread := runevents.Thread{ID: obj.Get("id").String()}
	if ts := obj.Get("created_at"); ts.Exists() {
		thread.CreatedAt = strfmt.DateTime(time.Unix(ts.Int(), 0).UTC())
	}
	return thread, nil
}

func (c *Client) CreateMessage(ctx context.Context, threadID string, role runevents.Role, content string) (runevents.Message, error) {
	params := openai.BetaThreadMessageNewParams{
		Content: openai.BetaThreadMessageNewParamsContentUnion{OfString: openai.String(content)},
		Role:    openai.BetaThreadMessageNewParamsRoleUser,
	}
	if role == runevents.RoleAssistant {
		params.Role = openai.BetaThreadMessageNewParamsRoleAssistant
	}
	msg, err := c.client.Beta.Threads.Messages.New(ctx, threadID, params)
	if err != nil {
		return runevents.Message{}, notFound(err, "failed to create message on thread "+threadID)
	}
	return runevents.MessageFromJSON([]byte(msg.RawJSON()))
}

func (c *Client) StreamRun(ctx context.Context, threadID, agentID string) (dispatch.Stream, error) {
	src := c.client.Beta.Threads.Runs.NewStreaming(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: agentID,
	})
	if err := src.Err(); err != nil {
		_ = src.Close()
		return nil, notFound(err, "failed to start run on thread "+threadID)
	}
	return newRunStream[openai.AssistantStreamEventUnion](src, c.logger), nil
}

func (c *Client) CreateAndProcessRun(ctx context.Context, threadID, agentID string) (runevents.Run, error) {
	created, err := c.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: agentID,
	})
	if err != nil {
		return runevents.Run{}, notFound(err, "failed to create run on thread "+threadID)
	}
	run, err := runevents.RunFromJSON([]byte(created.RawJSON()))
	if err != nil {
		return runevents.Run{}, err
	}

	log := c.logger.With(slogx.Run(agentID, threadID, run.ID))
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for !run.Status.Terminal() {
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
		current, err := c.client.Beta.Threads.Runs.Get(ctx, threadID, run.ID)
		if err != nil {
			return run, fmt.Errorf("failed to poll run %s: %w", run.ID, err)
		}
		if run, err = runevents.RunFromJSON([]byte(current.RawJSON())); err != nil {
			return run, err
		}
		log.DebugContext(ctx, "Run status", slog.String("status", string(run.Status)))
	}
	return run, nil
}

func (c *Client) ListMessages(ctx context.Context, threadID string, order agentservice.Order) ([]runevents.Message, error) {
	params := openai.BetaThreadMessageListParams{Order: openai.BetaThreadMessageListParamsOrderAsc}
	if order == agentservice.OrderDesc {
		params.Order = openai.BetaThreadMessageListParamsOrderDesc
	}

	pager := c.client.Beta.Threads.Messages.ListAutoPaging(ctx, threadID, params)
	var msgs []runevents.Message
	for pager.Next() {
		msg, err := runevents.MessageFromJSON([]byte(pager.Current().RawJSON()))
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, msg)
	}
	if err := pager.Err(); err != nil {
		return msgs, notFound(err, "failed to list messages of thread "+threadID)
	}
	return msgs, nil
}
