// Package leaselock implements leases on named keys stored in the app_locks
// table. A lease is renewed in the background for as long as it is held and
// its context is cancelled when renewal fails.
package leaselock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrBusy = errors.New("lease lock busy")
	ErrLost = errors.New("lease lock lost")
)

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Client struct {
	db DB
}

type Options struct {
	TTL        time.Duration
	RenewEvery time.Duration

	Wait         bool
	WaitInterval time.Duration
	WaitJitter   time.Duration

	TokenPrefix string
}

type Lease struct {
	Key   string
	Token string

	Context context.Context

	client *Client
	cancel context.CancelCauseFunc

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(db DB) *Client {
	return &Client{db: db}
}

// maxKeyLen keeps keys well inside the lock_key column.
const maxKeyLen = 200

// Key builds the lease key for an operation on a set of entities. The ids are
// sorted so that the same set always maps to the same key; very large sets
// are hashed.
func Key(op string, ids ...int64) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	key := op + ":" + strings.Join(parts, ",")
	if len(key) <= maxKeyLen {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:sha256:%s", op, hex.EncodeToString(sum[:]))
}

func (o Options) normalize() Options {
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Second)
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = 250 * time.Millisecond
	}
	if o.WaitJitter < 0 {
		o.WaitJitter = 0
	}
	return o
}

// WithLease runs fn while holding the lease on key. fn receives the lease
// context, which is cancelled if the lease is lost.
func (c *Client) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	lease, err := c.Acquire(ctx, key, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			logger.Warn("[Lease] Release failed", "key", key, "err", err)
		}
	}()

	err = fn(lease.Context)
	if cause := context.Cause(lease.Context); err != nil && errors.Is(cause, ErrLost) {
		return fmt.Errorf("%w: %w", ErrLost, err)
	}
	return err
}

// Acquire takes the lease on key. Without opts.Wait it fails fast with
// ErrBusy when another holder owns an unexpired lease.
func (c *Client) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease lock key is empty")
	}
	opts = opts.normalize()

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	token := opts.TokenPrefix + id
	ttlMs := max(opts.TTL.Milliseconds(), 1)

	for {
		held, err := c.upsert(ctx, acquireSQL, key, token, ttlMs)
		if err != nil {
			return nil, err
		}
		if held {
			break
		}
		if !opts.Wait {
			return nil, ErrBusy
		}
		if err := sleepWithJitter(ctx, opts.WaitInterval, opts.WaitJitter); err != nil {
			return nil, err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &Lease{
		Key:     key,
		Token:   token,
		Context: leaseCtx,
		client:  c,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
	}
	go l.keepAlive(opts.RenewEvery, ttlMs)

	return l, nil
}

// upsert runs a statement that returns the lock key when the caller holds it.
func (c *Client) upsert(ctx context.Context, sql, key, token string, ttlMs int64) (bool, error) {
	var got string
	err := c.db.QueryRow(ctx, sql, key, token, ttlMs).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got == key, nil
}

func (l *Lease) Release(ctx context.Context) error {
	l.stop(context.Canceled)
	_, err := l.client.db.Exec(ctx, releaseSQL, l.Key, l.Token)
	return err
}

func (l *Lease) stop(cause error) {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.cancel(cause)
	})
}

func (l *Lease) keepAlive(every time.Duration, ttlMs int64) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-l.Context.Done():
			return
		case <-ticker.C:
		}
		if err := l.renew(ttlMs); err != nil {
			logger.Warn("[Lease] Lost lease", "key", l.Key, "err", err)
			l.stop(fmt.Errorf("%w: %w", ErrLost, err))
			return
		}
	}
}

// renew extends the lease, retrying transient failures a few times.
func (l *Lease) renew(ttlMs int64) error {
	const attempts = 3
	var lastErr error
	for range attempts {
		ctx, cancel := context.WithTimeout(l.Context, 15*time.Second)
		held, err := l.client.upsert(ctx, renewSQL, l.Key, l.Token, ttlMs)
		cancel()
		switch {
		case err == nil && held:
			return nil
		case err == nil:
			return ErrLost
		}
		lastErr = err
		if err := sleepWithJitter(l.Context, 200*time.Millisecond, 100*time.Millisecond); err != nil {
			return err
		}
	}
	return lastErr
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// An expired lease may be taken over; a holder re-acquiring with its own
// token refreshes the expiry.
const acquireSQL = `
INSERT INTO app_locks AS l (lock_key, locked_by, expires_at)
VALUES ($1, $2, now() + make_interval(secs => $3::bigint / 1000.0))
ON CONFLICT (lock_key) DO UPDATE
SET locked_by = EXCLUDED.locked_by, expires_at = EXCLUDED.expires_at
WHERE l.expires_at < now() OR l.locked_by = EXCLUDED.locked_by
RETURNING lock_key`

const renewSQL = `
UPDATE app_locks
SET expires_at = now() + make_interval(secs => $3::bigint / 1000.0)
WHERE lock_key = $1 AND locked_by = $2
RETURNING lock_key`

const releaseSQL = `DELETE FROM app_locks WHERE lock_key = $1 AND locked_by = $2`
