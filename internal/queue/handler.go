package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/threadgraph/internal/stages"
	"github.com/OFFIS-RIT/threadgraph/pkg/common"
	"github.com/OFFIS-RIT/threadgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"
)

// GraphJob is the message body of graph_queue jobs. The graph stage always
// covers every linked source.
const GraphJob = "all"

// Handler runs one stage job per message and enqueues the follow-up stage.
type Handler struct {
	Deps      stages.Deps
	Locks     *leaselock.Locker
	Publisher Publisher
	Holder    string
}

// Handle runs stage over source while holding the stage:source lease. On
// success the same source name is published to the next stage's queue if
// that stage has a source of this name; the link stage always triggers a
// graph rebuild.
func (h *Handler) Handle(ctx context.Context, stage common.Stage, source string) error {
	if source == "" {
		return errors.New("empty job")
	}

	run := func(ctx context.Context) error {
		if stage == common.StageGraph {
			_, err := stages.RunGraph(ctx, h.Deps)
			return err
		}
		_, err := stages.RunSource(ctx, h.Deps, stage, source)
		return err
	}

	var err error
	if h.Locks != nil {
		err = h.Locks.Hold(ctx, leaselock.SourceKey(string(stage), source), leaselock.Options{Holder: h.Holder}, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return err
	}

	return h.chain(stage, source)
}

func (h *Handler) chain(stage common.Stage, source string) error {
	next, ok := stage.Next()
	if !ok || h.Publisher == nil {
		return nil
	}

	body := source
	if next == common.StageGraph {
		body = GraphJob
	} else if _, ok := h.Deps.Config.Source(string(next), source); !ok {
		logger.Debug("No downstream source configured", "stage", next, "source", source)
		return nil
	}

	if err := h.Publisher.Publish(Name(next), []byte(body)); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", next, err)
	}
	logger.Info("Enqueued next stage", "stage", next, "source", body)
	return nil
}
