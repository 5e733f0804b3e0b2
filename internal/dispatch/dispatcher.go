// Package dispatch publishes a confirmed translation to every configured
// sink and aggregates the per-platform results.
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of publishing to one sink.
type Result struct {
	Platform  string   `json:"platform"`
	Success   bool     `json:"success"`
	UnitCount int      `json:"unit_count"`
	Threaded  bool     `json:"threaded"`
	Error     string   `json:"error,omitempty"`
	IDs       []string `json:"ids,omitempty"`
}

// Outcome aggregates the results of one sharing attempt. Order lists the
// sink names in the order they were given.
type Outcome struct {
	ID      string            `json:"id"`
	Results map[string]Result `json:"results"`
	Order   []string          `json:"order"`
}

// Ordered returns the results in sink order.
func (o Outcome) Ordered() []Result {
	out := make([]Result, 0, len(o.Order))
	for _, name := range o.Order {
		out = append(out, o.Results[name])
	}
	return out
}

// Succeeded reports whether every sink succeeded.
func (o Outcome) Succeeded() bool {
	if len(o.Results) == 0 {
		return false
	}
	for _, res := range o.Results {
		if !res.Success {
			return false
		}
	}
	return true
}

// Sink is a platform a translation can be published to.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, text string) Result
}

// Dispatcher fans a text out to sinks concurrently. Sinks never affect each
// other's results.
type Dispatcher struct {
	logger zerolog.Logger
	newID  func() string
}

// NewDispatcher creates a dispatcher that logs through logger.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		logger: logger.With().Str("component", "dispatch").Logger(),
		newID:  uuid.NewString,
	}
}

// Dispatch publishes text to all sinks and waits for them. It never fails:
// sink errors, including panics, end up in that sink's Result.
func (d *Dispatcher) Dispatch(ctx context.Context, text string, sinks ...Sink) Outcome {
	outcome := Outcome{
		ID:      d.newID(),
		Results: make(map[string]Result, len(sinks)),
		Order:   make([]string, 0, len(sinks)),
	}

	results := make([]Result, len(sinks))
	var g errgroup.Group
	for i, sink := range sinks {
		g.Go(func() error {
			results[i] = d.deliver(ctx, sink, text)
			return nil
		})
	}
	_ = g.Wait()

	for i, sink := range sinks {
		name := sink.Name()
		res := results[i]
		if res.Platform == "" {
			res.Platform = name
		}
		if _, dup := outcome.Results[name]; !dup {
			outcome.Order = append(outcome.Order, name)
		}
		outcome.Results[name] = res

		event := d.logger.Info()
		if !res.Success {
			event = d.logger.Warn().Str("error", res.Error)
		}
		event.Str("outcome", outcome.ID).
			Str("sink", name).
			Int("units", res.UnitCount).
			Bool("threaded", res.Threaded).
			Msg("📤 sink finished")
	}
	return outcome
}

func (d *Dispatcher) deliver(ctx context.Context, sink Sink, text string) (res Result) {
	name := sink.Name()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Platform: name, Error: fmt.Sprintf("sink panic: %v", r)}
		}
	}()
	return sink.Deliver(ctx, text)
}

// Unavailable is a sink that always fails with a fixed reason, used for
// platforms that are configured but cannot be reached.
type Unavailable struct {
	Platform string
	Reason   string
}

func (u Unavailable) Name() string { return u.Platform }

func (u Unavailable) Deliver(ctx context.Context, text string) Result {
	return Result{Platform: u.Platform, Error: u.Reason}
}
