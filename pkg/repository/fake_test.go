package repository_test

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gapassess/gap/pkg/adapter"
	"github.com/gapassess/gap/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// fakeDatabase is an in-memory adapter.Database with failure injection
type fakeDatabase struct {
	mu sync.Mutex

	now      func() time.Time
	seq      int64
	profiles map[model.UserID]bool
	progress []*adapter.ProgressRow
	recs     map[int64]*adapter.RecommendationRow
	chats    []*adapter.ChatRow

	upsertErr    error
	insertErr    error
	recommendErr error
	selectErr    error
	recSelectErr error
	chatErr      error

	progressQueries []adapter.ProgressQuery
	chatQueries     []adapter.ChatQuery
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{
		now:      time.Now,
		profiles: make(map[model.UserID]bool),
		recs:     make(map[int64]*adapter.RecommendationRow),
	}
}

func (f *fakeDatabase) UpsertProfile(ctx context.Context, userID model.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.profiles[userID] = true
	return nil
}

func (f *fakeDatabase) InsertProgressEntry(ctx context.Context, row *adapter.ProgressRow) (*adapter.ProgressRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.seq++
	stored := *row
	stored.RowID = f.seq
	stored.CreatedAt = f.now().UTC()
	f.progress = append(f.progress, &stored)

	out := stored
	return &out, nil
}

func (f *fakeDatabase) InsertRecommendation(ctx context.Context, row *adapter.RecommendationRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recommendErr != nil {
		return f.recommendErr
	}
	if _, ok := f.recs[row.ProgressRowID]; ok {
		return goerr.New("duplicate recommendation", goerr.V("progress_entry_id", row.ProgressRowID))
	}
	stored := *row
	f.recs[row.ProgressRowID] = &stored
	return nil
}

func (f *fakeDatabase) SelectProgressEntries(ctx context.Context, q adapter.ProgressQuery) ([]*adapter.ProgressRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progressQueries = append(f.progressQueries, q)
	if f.selectErr != nil {
		return nil, f.selectErr
	}

	var out []*adapter.ProgressRow
	for _, row := range f.progress {
		if row.UserID == q.UserID {
			copied := *row
			out = append(out, &copied)
		}
	}
	slices.SortFunc(out, func(a, b *adapter.ProgressRow) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.RowID, b.RowID))
	})
	if q.Direction == model.SortDesc {
		slices.Reverse(out)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeDatabase) SelectRecommendations(ctx context.Context, rowIDs []int64) ([]*adapter.RecommendationRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recSelectErr != nil {
		return nil, f.recSelectErr
	}

	var out []*adapter.RecommendationRow
	for _, id := range rowIDs {
		if rec, ok := f.recs[id]; ok {
			copied := *rec
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeDatabase) InsertChatMessage(ctx context.Context, row *adapter.ChatRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chatErr != nil {
		return f.chatErr
	}
	f.seq++
	stored := *row
	stored.RowID = f.seq
	stored.CreatedAt = f.now().UTC()
	f.chats = append(f.chats, &stored)
	return nil
}

func (f *fakeDatabase) SelectChatMessages(ctx context.Context, q adapter.ChatQuery) ([]*adapter.ChatRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatQueries = append(f.chatQueries, q)
	if f.selectErr != nil {
		return nil, f.selectErr
	}

	var out []*adapter.ChatRow
	for _, row := range f.chats {
		if row.UserID != q.UserID {
			continue
		}
		if q.SessionID != "" && row.SessionID != q.SessionID {
			continue
		}
		copied := *row
		out = append(out, &copied)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// fixedClock returns the same instant on every call, collapsing timestamps
func fixedClock() func() time.Time {
	t := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

// steppingClock advances by one second per call
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

// failingBlobStore wraps a BlobStore and fails reads or writes on demand
type failingBlobStore struct {
	adapter.BlobStore
	failSet error
	failGet error
}

func (s *failingBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.failGet != nil {
		return nil, s.failGet
	}
	return s.BlobStore.Get(ctx, key)
}

func (s *failingBlobStore) Set(ctx context.Context, key string, data []byte) error {
	if s.failSet != nil {
		return s.failSet
	}
	return s.BlobStore.Set(ctx, key, data)
}
