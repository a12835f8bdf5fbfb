package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexradar/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type janitorStore struct {
	domain.OpportunityStore
	mu        sync.Mutex
	expired   int64
	expireErr error
	terminal  []domain.OpportunityCandidate
	listErr   error
	deleted   [][]string
}

func (s *janitorStore) ExpireBefore(context.Context, time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired, s.expireErr
}

func (s *janitorStore) ListTerminalBefore(context.Context, time.Time) ([]domain.OpportunityCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal, s.listErr
}

func (s *janitorStore) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, ids)
	return int64(len(ids)), nil
}

func (s *janitorStore) deleteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deleted)
}

type fakeArchiver struct {
	mu       sync.Mutex
	err      error
	archived [][]domain.OpportunityCandidate
}

func (a *fakeArchiver) ArchiveCandidates(_ context.Context, cands []domain.OpportunityCandidate, _ time.Time) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.archived = append(a.archived, cands)
	return "candidates/2026/08/batch.json.gz", nil
}

func terminalCandidates(ids ...string) []domain.OpportunityCandidate {
	out := make([]domain.OpportunityCandidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.OpportunityCandidate{ID: id, Status: domain.StatusExpired})
	}
	return out
}

func newJanitor(t *testing.T, store domain.OpportunityStore, arch CandidateArchiver) *Janitor {
	t.Helper()
	j, err := NewJanitor(store, arch, RetentionConfig{
		ExpireAfter:   5 * time.Minute,
		PurgeAfter:    time.Hour,
		SweepInterval: time.Minute,
	}, discardLogger())
	require.NoError(t, err)
	return j
}

func TestNewJanitorRequiresStore(t *testing.T) {
	_, err := NewJanitor(nil, nil, RetentionConfig{}, discardLogger())
	assert.Error(t, err)
}

func TestSweepPurgesWithArchive(t *testing.T) {
	store := &janitorStore{expired: 2, terminal: terminalCandidates("a", "b", "c")}
	arch := &fakeArchiver{}
	j := newJanitor(t, store, arch)

	j.Sweep(context.Background())

	require.Len(t, arch.archived, 1)
	assert.Len(t, arch.archived[0], 3)

	require.Equal(t, 1, store.deleteCalls())
	assert.Equal(t, []string{"a", "b", "c"}, store.deleted[0])
}

func TestSweepAbortsPurgeOnArchiveFailure(t *testing.T) {
	store := &janitorStore{terminal: terminalCandidates("a", "b")}
	arch := &fakeArchiver{err: errors.New("s3 unavailable")}
	j := newJanitor(t, store, arch)

	j.Sweep(context.Background())

	// Nothing is deleted without a durable copy.
	assert.Equal(t, 0, store.deleteCalls())
}

func TestSweepWithoutArchiverDeletesDirectly(t *testing.T) {
	store := &janitorStore{terminal: terminalCandidates("a")}
	j := newJanitor(t, store, nil)

	j.Sweep(context.Background())

	require.Equal(t, 1, store.deleteCalls())
	assert.Equal(t, []string{"a"}, store.deleted[0])
}

func TestSweepSkipsEmptyPurgeBatch(t *testing.T) {
	store := &janitorStore{}
	arch := &fakeArchiver{}
	j := newJanitor(t, store, arch)

	j.Sweep(context.Background())

	assert.Empty(t, arch.archived)
	assert.Equal(t, 0, store.deleteCalls())
}

func TestSweepToleratesExpireFailure(t *testing.T) {
	store := &janitorStore{expireErr: errors.New("db down"), terminal: terminalCandidates("a")}
	j := newJanitor(t, store, nil)

	// The purge pass still runs.
	j.Sweep(context.Background())
	assert.Equal(t, 1, store.deleteCalls())
}
