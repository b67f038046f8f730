package repository

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"

	"github.com/gapassess/gap/pkg/adapter"
	"github.com/gapassess/gap/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Local implements Repository on a BlobStore. Each user's history is one JSON list stored
// under a key namespaced by the user id and rewritten in full on every append.
type Local struct {
	blob adapter.BlobStore
	opts options

	// serializes read-modify-write cycles within this process
	mu sync.Mutex
}

var _ Repository = (*Local)(nil)

func NewLocal(blob adapter.BlobStore, opts ...Option) *Local {
	return &Local{
		blob: blob,
		opts: newOptions(opts),
	}
}

func ProgressKey(userID model.UserID) string { return "gap_progress_history_" + string(userID) }
func ChatKey(userID model.UserID) string     { return "gap_chat_history_" + string(userID) }
func ProfileKey(userID model.UserID) string  { return "gap_profile_" + string(userID) }

type localProfile struct {
	ID        model.UserID `json:"id"`
	CreatedAt string       `json:"created_at"`
}

func (l *Local) ensureProfile(ctx context.Context, userID model.UserID) error {
	key := ProfileKey(userID)
	_, err := l.blob.Get(ctx, key)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrBlobNotFound) {
		return err
	}

	raw, err := json.Marshal(localProfile{ID: userID, CreatedAt: model.FormatTimestamp(l.opts.now())})
	if err != nil {
		return goerr.Wrap(err, "failed to marshal profile")
	}
	return l.blob.Set(ctx, key, raw)
}

// loadList decodes the JSON list stored under key. A missing key is an empty list.
func loadList[T any](ctx context.Context, blob adapter.BlobStore, key string) ([]T, error) {
	raw, err := blob.Get(ctx, key)
	if errors.Is(err, model.ErrBlobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, model.Classify(model.ErrStoreUnavailable, err)
	}

	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, model.Classify(model.ErrStoreUnavailable,
			goerr.Wrap(err, "stored list is not valid JSON", goerr.V("key", key)))
	}
	return list, nil
}

func storeList[T any](ctx context.Context, blob adapter.BlobStore, key string, list []T) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal list", goerr.V("key", key))
	}
	if err := blob.Set(ctx, key, raw); err != nil {
		return model.Classify(model.ErrStoreUnavailable, err)
	}
	return nil
}

func (l *Local) SaveProgress(ctx context.Context, userID model.UserID, inputs model.AssessmentData, result model.PredictionResult) (*model.ProgressEntry, error) {
	if userID == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "user id is required for storage")
	}

	inputs, result, err := model.NormalizePayload(inputs, result)
	if err != nil {
		return nil, model.Classify(model.ErrInvalidArgument, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.opts.report(ctx, "ensure_profile", userID, l.ensureProfile(ctx, userID))

	key := ProgressKey(userID)
	history, err := loadList[*model.ProgressEntry](ctx, l.blob, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load progress history", goerr.V("user_id", userID))
	}

	entry := &model.ProgressEntry{
		EntryID:   l.opts.newEntryID(),
		UserID:    userID,
		Timestamp: model.FormatTimestamp(l.opts.now()),
		ProgressPayload: model.ProgressPayload{
			Inputs: inputs,
			Result: result,
		},
	}

	history = append(history, entry)
	if err := storeList(ctx, l.blob, key, history); err != nil {
		return nil, goerr.Wrap(err, "failed to save progress history", goerr.V("user_id", userID))
	}

	return entry, nil
}

func (l *Local) GetProgressHistory(ctx context.Context, userID model.UserID, dir model.SortDirection) []*model.ProgressEntry {
	if userID == "" {
		return []*model.ProgressEntry{}
	}

	history, err := loadList[*model.ProgressEntry](ctx, l.blob, ProgressKey(userID))
	if err != nil {
		readFailed(ctx, "get_progress_history", userID, err)
		return []*model.ProgressEntry{}
	}
	if history == nil {
		return []*model.ProgressEntry{}
	}

	// The stored list is in insertion order, so a stable sort keeps it as the tiebreaker.
	slices.SortStableFunc(history, func(a, b *model.ProgressEntry) int {
		return a.Time().Compare(b.Time())
	})
	if dir.Normalize() == model.SortDesc {
		slices.Reverse(history)
	}
	return history
}

func (l *Local) GetLatestProgress(ctx context.Context, userID model.UserID) *model.ProgressEntry {
	return first(l.GetProgressHistory(ctx, userID, model.SortDesc))
}

func (l *Local) GetBaselineProgress(ctx context.Context, userID model.UserID) *model.ProgressEntry {
	return first(l.GetProgressHistory(ctx, userID, model.SortAsc))
}

func (l *Local) SaveChatMessage(ctx context.Context, userID model.UserID, role model.ChatRole, content string, sessionID model.ChatSessionID) Outcome {
	if userID == "" {
		return l.opts.report(ctx, "save_chat_message", userID,
			goerr.Wrap(model.ErrInvalidArgument, "user id is required for chat logging"))
	}
	if err := role.Validate(); err != nil {
		return l.opts.report(ctx, "save_chat_message", userID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.opts.report(ctx, "ensure_profile", userID, l.ensureProfile(ctx, userID))

	key := ChatKey(userID)
	messages, err := loadList[*model.ChatMessage](ctx, l.blob, key)
	if err != nil {
		return l.opts.report(ctx, "save_chat_message", userID, err)
	}

	messages = append(messages, &model.ChatMessage{
		UserID:    userID,
		Role:      role,
		Content:   content,
		SessionID: sessionID,
		CreatedAt: model.FormatTimestamp(l.opts.now()),
	})
	return l.opts.report(ctx, "save_chat_message", userID, storeList(ctx, l.blob, key, messages))
}

func (l *Local) GetChatHistory(ctx context.Context, userID model.UserID, sessionID model.ChatSessionID, limit int) []*model.ChatMessage {
	if userID == "" {
		return []*model.ChatMessage{}
	}

	messages, err := loadList[*model.ChatMessage](ctx, l.blob, ChatKey(userID))
	if err != nil {
		readFailed(ctx, "get_chat_history", userID, err)
		return []*model.ChatMessage{}
	}

	out := make([]*model.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if sessionID != "" && msg.SessionID != sessionID {
			continue
		}
		out = append(out, msg)
	}

	// Same window as the remote query: the oldest messages up to limit.
	if n := chatLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out
}

func first(entries []*model.ProgressEntry) *model.ProgressEntry {
	if len(entries) == 0 {
		return nil
	}
	return entries[0]
}
