package bootstrap

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/internal/util"
	"github.com/OFFIS-RIT/amphora/backend/pkg/graph"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
	"github.com/OFFIS-RIT/amphora/backend/pkg/vocab"
)

// NewGraphClient configures a graph client from the environment. It is shared
// by the server and the worker.
func NewGraphClient(st store.GraphStore, payloads graph.PayloadSource) (*graph.GraphClient, error) {
	return graph.NewGraphClient(graph.NewGraphClientParams{
		Store:         st,
		Payloads:      payloads,
		Namespace:     util.GetEnv("AMPHORA_NAMESPACE"),
		LockRetries:   int(util.GetEnvNumeric("LOCK_RETRIES", 3)),
		RetryInterval: util.GetEnvMillis("LOCK_RETRY_INTERVAL_MS", 50*time.Millisecond),
		ExportWorkers: int(util.GetEnvNumeric("EXPORT_PARALLEL", 4)),

		SubtypeConstraints: util.GetEnvBool("SUBTYPE_CONSTRAINTS", false),
	})
}

// Vocabulary makes sure the system vocabulary exists and applies the
// vocabulary file named by VOCABULARY_FILE, if any.
func Vocabulary(ctx context.Context, g *graph.GraphClient) error {
	if _, err := g.EnsureSystemVocabulary(ctx); err != nil {
		return err
	}
	path := util.GetEnv("VOCABULARY_FILE")
	if path == "" {
		return nil
	}
	f, err := vocab.Load(path)
	if err != nil {
		return err
	}
	ids, err := vocab.Apply(ctx, g, f)
	if err != nil {
		return err
	}
	logger.Info("Vocabulary applied", "file", path, "types", len(ids))
	return nil
}
