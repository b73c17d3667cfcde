package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/threadgraph/internal/config"
	"github.com/OFFIS-RIT/threadgraph/internal/util"
	"github.com/OFFIS-RIT/threadgraph/pkg/ai"
	oai "github.com/OFFIS-RIT/threadgraph/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/threadgraph/pkg/ai/openai"
	"github.com/OFFIS-RIT/threadgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/threadgraph/pkg/common"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewModelFromEnv builds the model client selected by AI_ADAPTER.
func NewModelFromEnv() (ai.Client, error) {
	switch adapter := util.GetEnvString("AI_ADAPTER", "openai"); adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			ChatModel:     util.GetEnv("AI_CHAT_MODEL"),
			SequenceModel: util.GetEnv("AI_SEQUENCE_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvInt("AI_PARALLEL_REQ", 1)),
		})
		if err != nil {
			return nil, fmt.Errorf("could not create Ollama client: %w", err)
		}
		return client, nil
	case "openai":
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			ChatModel:     util.GetEnv("AI_CHAT_MODEL"),
			SequenceModel: util.GetEnv("AI_SEQUENCE_MODEL"),

			ChatURL:     util.GetEnv("AI_CHAT_URL"),
			ChatKey:     util.GetEnv("AI_CHAT_KEY"),
			SequenceURL: util.GetEnv("AI_SEQUENCE_URL"),
			SequenceKey: util.GetEnv("AI_SEQUENCE_KEY"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown AI_ADAPTER %q", adapter)
	}
}

// OpenStore opens the checkpoint backend named in cfg. The returned close
// function releases the file lock, if any.
func OpenStore(cfg config.CheckpointConfig, pool *pgxpool.Pool) (checkpoint.Store, func() error, error) {
	switch cfg.Backend {
	case "postgres":
		if pool == nil {
			return nil, nil, errors.New("postgres checkpoint backend needs DATABASE_URL")
		}
		return checkpoint.NewPgxStore(pool), func() error { return nil }, nil
	default:
		store, err := checkpoint.OpenFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
}

// Progress lists all checkpoints of the store, if it can enumerate them.
func Progress(ctx context.Context, store checkpoint.Store) ([]checkpoint.State, error) {
	lister, ok := store.(checkpoint.Lister)
	if !ok {
		return nil, errors.New("checkpoint store cannot list sources")
	}
	return lister.List(ctx)
}

// Reset forgets the checkpoint of one source so that its next run starts at
// the first line and rewrites the output.
func Reset(ctx context.Context, store checkpoint.Store, stage common.Stage, name string) error {
	resetter, ok := store.(checkpoint.Resetter)
	if !ok {
		return errors.New("checkpoint store cannot reset sources")
	}
	if err := resetter.Reset(ctx, SourceID(stage, name)); err != nil {
		return fmt.Errorf("failed to reset %s: %w", SourceID(stage, name), err)
	}
	return store.Flush(ctx)
}
