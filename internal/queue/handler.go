package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/graph"
	"github.com/OFFIS-RIT/amphora/backend/pkg/leaselock"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"
)

var errMalformed = errors.New("malformed job message")

// Locker runs fn while holding a lease on key. *leaselock.Client satisfies it.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// ArchiveTarget receives finished export archives.
type ArchiveTarget interface {
	PutFile(ctx context.Context, name string, file io.ReadSeeker, size int64, contentType string) error
}

// Processor executes job messages against the graph.
type Processor struct {
	graph     *graph.GraphClient
	locks     Locker
	archives  ArchiveTarget
	events    Publisher
	leaseOpts leaselock.Options
}

type NewProcessorParams struct {
	Graph    *graph.GraphClient
	Locks    Locker
	Archives ArchiveTarget
	// Events is optional; when set a JobEvent is published per finished job.
	Events Publisher
	// LeaseTTL bounds how long a crashed worker can block a target.
	LeaseTTL time.Duration
}

func NewProcessor(params NewProcessorParams) (*Processor, error) {
	if params.Graph == nil {
		return nil, errors.New("graph client is required")
	}
	if params.Locks == nil {
		return nil, errors.New("locker is required")
	}
	ttl := params.LeaseTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Processor{
		graph:    params.Graph,
		locks:    params.Locks,
		archives: params.Archives,
		events:   params.Events,
		leaseOpts: leaselock.Options{
			TTL:        ttl,
			RenewEvery: ttl / 3,
			Wait:       true,
			WaitJitter: 100 * time.Millisecond,
		},
	}, nil
}

// Process runs the job in body. Validation failures and malformed messages
// are logged and reported as handled: retrying them cannot succeed.
func (p *Processor) Process(ctx context.Context, queueName string, body []byte) error {
	correlationID, result, err := p.dispatch(ctx, queueName, body)
	switch {
	case err == nil:
		p.publish(queueName, JobEvent{CorrelationID: correlationID, Queue: queueName, Status: "done", Result: result})
		return nil
	case errors.Is(err, errMalformed), common.IsValidation(err), errors.Is(err, common.ErrNotFound):
		logger.Warn("[Queue] Rejected job", "queue", queueName, "correlation_id", correlationID,
			"ids", common.OffendingIDs(err), "err", err)
		p.publish(queueName, JobEvent{CorrelationID: correlationID, Queue: queueName, Status: "rejected", Error: err.Error()})
		return nil
	default:
		return err
	}
}

func (p *Processor) dispatch(ctx context.Context, queueName string, body []byte) (string, any, error) {
	switch queueName {
	case MergeQueue:
		msg, err := decode[MergeJobMsg](body)
		if err != nil {
			return "", nil, err
		}
		var master int64
		err = p.withLease(ctx, leaselock.Key("merge", msg.IDs...), msg.CorrelationID, func(ctx context.Context) error {
			master, err = p.graph.Merge(ctx, graph.MergeParams{
				IDs:             msg.IDs,
				PreferredMaster: msg.PreferredMaster,
				AddedBy:         msg.AddedBy,
			})
			return err
		})
		return msg.CorrelationID, map[string]int64{"representative": master}, err

	case MergeResourcesQueue:
		msg, err := decode[MergeResourcesJobMsg](body)
		if err != nil {
			return "", nil, err
		}
		var res *graph.MergeResourcesResult
		err = p.withLease(ctx, leaselock.Key("merge_resources", msg.IDs...), msg.CorrelationID, func(ctx context.Context) error {
			res, err = p.graph.MergeResources(ctx, graph.MergeResourcesParams{
				IDs:             msg.IDs,
				PreferredMaster: msg.PreferredMaster,
				Keep:            msg.Keep,
			})
			return err
		})
		return msg.CorrelationID, res, err

	case IsolateQueue:
		msg, err := decode[IsolateJobMsg](body)
		if err != nil {
			return "", nil, err
		}
		var res *graph.IsolateResult
		err = p.withLease(ctx, leaselock.Key("isolate", msg.ID), msg.CorrelationID, func(ctx context.Context) error {
			res, err = p.graph.Isolate(ctx, msg.ID, msg.AddedBy)
			return err
		})
		return msg.CorrelationID, res, err

	case PruneQueue:
		msg, err := decode[PruneJobMsg](body)
		if err != nil {
			return "", nil, err
		}
		var deleted int
		err = p.withLease(ctx, leaselock.Key("prune", msg.ID), msg.CorrelationID, func(ctx context.Context) error {
			deleted, err = p.graph.Prune(ctx, msg.ID)
			return err
		})
		return msg.CorrelationID, map[string]int{"deleted": deleted}, err

	case ExportQueue:
		msg, err := decode[ExportJobMsg](body)
		if err != nil {
			return "", nil, err
		}
		if msg.CorrelationID == "" {
			return "", nil, fmt.Errorf("%w: correlation id is required for exports", errMalformed)
		}
		var res *graph.ExportResult
		err = p.withLease(ctx, leaselock.Key("export", msg.Roots...), msg.CorrelationID, func(ctx context.Context) error {
			res, err = p.export(ctx, msg)
			return err
		})
		return msg.CorrelationID, res, err

	default:
		return "", nil, fmt.Errorf("%w: unknown queue %s", errMalformed, queueName)
	}
}

func (p *Processor) withLease(ctx context.Context, key, correlationID string, fn func(ctx context.Context) error) error {
	opts := p.leaseOpts
	opts.TokenPrefix = correlationID + "/"
	return p.locks.WithLease(ctx, key, opts, fn)
}

// export writes the archive to a temporary file and hands it to the archive
// target once complete.
func (p *Processor) export(ctx context.Context, msg ExportJobMsg) (*graph.ExportResult, error) {
	if p.archives == nil {
		return nil, errors.New("no archive target configured")
	}

	tmp, err := os.CreateTemp("", "amphora-export-*.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	start := time.Now()
	res, err := p.graph.ExportArchive(ctx, msg.Roots, tmp, graph.DefaultNaming, graph.ExportOptions{
		ContentType: msg.ContentType,
		Manifest:    msg.Manifest,
	})
	if err != nil {
		return nil, err
	}

	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	key := ExportKey(msg.CorrelationID)
	if err := p.archives.PutFile(ctx, key, tmp, size, "application/zip"); err != nil {
		return nil, err
	}

	logger.Info("[Queue] Export archived", "correlation_id", msg.CorrelationID, "key", key,
		"exported", res.Exported, "skipped", len(res.Skipped), "duration_sec", time.Since(start).Seconds())
	return res, nil
}

func (p *Processor) publish(queueName string, ev JobEvent) {
	if p.events == nil || ev.CorrelationID == "" {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("[Queue] Failed to marshal job event", "queue", queueName, "err", err)
		return
	}
	if err := PublishTopic(p.events, "job."+ev.Status, data); err != nil {
		logger.Warn("[Queue] Failed to publish job event", "queue", queueName, "err", err)
	}
}
