package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/casualjim/runrelay/runevents"
	"github.com/fogfish/opts"
)

// WithLogger sets the logger used for the internal event log.
var WithLogger = opts.ForName[Dispatcher, *slog.Logger]("logger")

// WithClock replaces the clock used to timestamp notifications.
var WithClock = opts.ForName[Dispatcher, func() time.Time]("now")

// OnEvent registers an observer that sees every raw event before it is
// transformed, filtered ones included.
func OnEvent(fn func(context.Context, runevents.StreamEvent)) opts.Option[Dispatcher] {
	return opts.Type[Dispatcher](func(d *Dispatcher) error {
		d.observers = append(d.observers, fn)
		return nil
	})
}
