package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store/memory"
)

// contendedStore fails the first conflicts write transactions with a lock
// conflict before handing over to the wrapped store.
type contendedStore struct {
	*memory.Store
	conflicts int
	attempts  int
}

func (s *contendedStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.attempts++
	if s.attempts <= s.conflicts {
		return common.ErrLockConflict
	}
	return s.Store.WithTx(ctx, fn)
}

func TestUpdate_RetriesLockConflicts(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	seed := newTestClientWith(t, base, nil)
	a := mustConcept(t, seed, "a", "")
	b := mustConcept(t, seed, "b", "")

	st := &contendedStore{Store: base, conflicts: 2}
	g, err := NewGraphClient(NewGraphClientParams{Store: st, LockRetries: 3, RetryInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	master, err := g.Merge(ctx, MergeParams{IDs: []int64{a, b}})
	if err != nil {
		t.Fatalf("expected merge to succeed after retries, got %v", err)
	}
	if master != a || st.attempts != 3 {
		t.Fatalf("expected master %d after 3 attempts, got %d after %d", a, master, st.attempts)
	}
}

func TestUpdate_GivesUpAfterRetries(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	seed := newTestClientWith(t, base, nil)
	a := mustConcept(t, seed, "a", "")
	b := mustConcept(t, seed, "b", "")

	st := &contendedStore{Store: base, conflicts: 10}
	g, _ := NewGraphClient(NewGraphClientParams{Store: st, LockRetries: 2, RetryInterval: time.Millisecond})
	_, err := g.Merge(ctx, MergeParams{IDs: []int64{a, b}})
	if !errors.Is(err, common.ErrLockConflict) {
		t.Fatalf("expected ErrLockConflict, got %v", err)
	}
	if st.attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", st.attempts)
	}
}
