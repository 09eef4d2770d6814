package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/internal/util"
	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"

	"golang.org/x/sync/singleflight"
)

const (
	defaultNamespace     = "urn:amphora"
	defaultLockRetries   = 3
	defaultRetryInterval = 50 * time.Millisecond
	defaultPageSize      = 500
	defaultExportWorkers = 4
)

// GraphClient is the entry point to the entity graph. It owns no state of its
// own beyond configuration; every operation goes through the backing store.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	store         store.GraphStore
	payloads      PayloadSource
	namespace     string
	lockRetries   int
	retryInterval time.Duration
	pageSize      int
	exportWorkers int
	subtypes      bool

	registry singleflight.Group
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// Namespace prefixes lazily assigned entity URIs.
// LockRetries bounds how often an operation that hit a lock conflict is retried.
// PageSize controls how many relations are fetched per round trip by lazy queries.
// Payloads opens content resource payloads for export; it may be nil when
// the client is never used for export.
// SubtypeConstraints lets a type satisfy a domain or range that names one of
// its ancestors; by default only the listed types do.
type NewGraphClientParams struct {
	Store         store.GraphStore
	Payloads      PayloadSource
	Namespace     string
	LockRetries   int
	RetryInterval time.Duration
	PageSize      int
	ExportWorkers int

	SubtypeConstraints bool
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		Store:     memory.New(),
//		Namespace: "https://amphora.example.org",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	if params.Store == nil {
		return nil, errors.New("graph store is nil")
	}
	g := &GraphClient{
		store:         params.Store,
		payloads:      params.Payloads,
		namespace:     strings.TrimSuffix(params.Namespace, "/"),
		lockRetries:   params.LockRetries,
		retryInterval: params.RetryInterval,
		pageSize:      params.PageSize,
		exportWorkers: params.ExportWorkers,
		subtypes:      params.SubtypeConstraints,
	}
	if g.namespace == "" {
		g.namespace = defaultNamespace
	}
	if g.lockRetries <= 0 {
		g.lockRetries = defaultLockRetries
	}
	if g.retryInterval <= 0 {
		g.retryInterval = defaultRetryInterval
	}
	if g.pageSize <= 0 {
		g.pageSize = defaultPageSize
	}
	if g.exportWorkers <= 0 {
		g.exportWorkers = defaultExportWorkers
	}
	return g, nil
}

// update runs fn in one write transaction and retries it when a lock could
// not be taken.
func (g *GraphClient) update(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return util.RetryOnWithContext(ctx, g.lockRetries, g.retryInterval, common.ErrLockConflict, func(ctx context.Context) error {
		return g.store.WithTx(ctx, func(tx store.Tx) error {
			return fn(ctx, tx)
		})
	})
}

func (g *GraphClient) read(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return g.store.Read(ctx, func(tx store.Tx) error {
		return fn(ctx, tx)
	})
}

// entityURI is the URI assigned to entities created without one.
func (g *GraphClient) entityURI(namespace string, kind common.Kind, id int64) string {
	if namespace == "" {
		namespace = g.namespace
	}
	return fmt.Sprintf("%s/%s/%d", strings.TrimSuffix(namespace, "/"), kind, id)
}
