// Package agentservice describes the hosted agent service the programs talk
// to: agents, threads, messages and runs. Implementations live in the
// subpackages; openai talks to an Assistants-compatible HTTP API and memory
// is an in-process stand-in.
package agentservice

import (
	"context"
	"errors"

	"github.com/casualjim/runrelay/dispatch"
	"github.com/casualjim/runrelay/runevents"
)

// ErrNotFound is returned when an agent or thread does not exist.
var ErrNotFound = errors.New("not found")

type Agent struct {
	ID           string
	Name         string
	Model        string
	Instructions string
}

// Order is the listing order of thread messages.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

type Client interface {
	GetAgent(ctx context.Context, agentID string) (Agent, error)
	CreateThread(ctx context.Context) (runevents.Thread, error)
	CreateMessage(ctx context.Context, threadID string, role runevents.Role, content string) (runevents.Message, error)
	// StreamRun starts a run of the agent against the thread and returns its
	// event stream. The caller must Close the stream.
	StreamRun(ctx context.Context, threadID, agentID string) (dispatch.Stream, error)
	// CreateAndProcessRun starts a run and waits until it reaches a terminal status.
	CreateAndProcessRun(ctx context.Context, threadID, agentID string) (runevents.Run, error)
	ListMessages(ctx context.Context, threadID string, order Order) ([]runevents.Message, error)
}
