package repository

import (
	"context"
	"errors"
	"time"

	"github.com/gapassess/gap/pkg/model"
	"github.com/gapassess/gap/pkg/utils/logging"
)

// DefaultChatLimit caps GetChatHistory when no positive limit is given
const DefaultChatLimit = 50

// HistoryStore is the append-only, per-user log of assessment entries. Reads never fail:
// on backend errors they log and degrade to an empty history or a nil entry.
type HistoryStore interface {
	// SaveProgress appends a new entry with a store-assigned id and timestamp
	SaveProgress(ctx context.Context, userID model.UserID, inputs model.AssessmentData, result model.PredictionResult) (*model.ProgressEntry, error)

	// GetProgressHistory returns the user's entries ordered by creation time
	GetProgressHistory(ctx context.Context, userID model.UserID, dir model.SortDirection) []*model.ProgressEntry

	// GetLatestProgress returns the most recent entry, or nil for an empty history
	GetLatestProgress(ctx context.Context, userID model.UserID) *model.ProgressEntry

	// GetBaselineProgress returns the earliest entry, or nil for an empty history
	GetBaselineProgress(ctx context.Context, userID model.UserID) *model.ProgressEntry
}

// ChatRecorder persists conversational turns. Writes are best-effort and never raise.
type ChatRecorder interface {
	SaveChatMessage(ctx context.Context, userID model.UserID, role model.ChatRole, content string, sessionID model.ChatSessionID) Outcome

	// GetChatHistory returns messages oldest first; limit <= 0 means DefaultChatLimit
	GetChatHistory(ctx context.Context, userID model.UserID, sessionID model.ChatSessionID, limit int) []*model.ChatMessage
}

type Repository interface {
	HistoryStore
	ChatRecorder
}

// Outcome is the result of a best-effort side write: either success or a failure that has
// been reported but is not raised to the caller.
type Outcome struct {
	Op     string
	UserID model.UserID
	Err    error
}

func (x Outcome) Failed() bool { return x.Err != nil }

// Reporter receives the outcome of every best-effort operation
type Reporter func(ctx context.Context, outcome Outcome)

// LogReporter writes failed outcomes to the context logger. Schema mismatches are logged at
// error level with code=schema_mismatch so operators can tell them from transient faults.
func LogReporter(ctx context.Context, outcome Outcome) {
	if !outcome.Failed() {
		return
	}
	logger := logging.From(ctx)
	if errors.Is(outcome.Err, model.ErrSchemaMismatch) {
		logger.Error("best-effort write rejected by schema",
			"code", "schema_mismatch",
			"op", outcome.Op,
			"user_id", outcome.UserID,
			"error", outcome.Err)
		return
	}
	logger.Warn("best-effort write failed",
		"op", outcome.Op,
		"user_id", outcome.UserID,
		"error", outcome.Err)
}

type options struct {
	reporter   Reporter
	now        func() time.Time
	newEntryID func() model.EntryID
}

type Option func(*options)

// WithReporter replaces LogReporter. The reporter sees successes as well as failures.
func WithReporter(r Reporter) Option {
	return func(o *options) {
		o.reporter = r
	}
}

// WithClock sets the clock used for store-assigned timestamps where the store assigns them itself
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func WithEntryIDGenerator(f func() model.EntryID) Option {
	return func(o *options) {
		o.newEntryID = f
	}
}

func newOptions(opts []Option) options {
	o := options{
		reporter:   LogReporter,
		now:        time.Now,
		newEntryID: model.NewEntryID,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) report(ctx context.Context, op string, userID model.UserID, err error) Outcome {
	outcome := Outcome{Op: op, UserID: userID, Err: err}
	o.reporter(ctx, outcome)
	return outcome
}

// readFailed logs a read that degraded to an empty result
func readFailed(ctx context.Context, op string, userID model.UserID, err error) {
	logger := logging.From(ctx)
	if errors.Is(err, model.ErrSchemaMismatch) {
		logger.Error("read rejected by schema",
			"code", "schema_mismatch",
			"op", op,
			"user_id", userID,
			"error", err)
		return
	}
	logger.Warn("read failed, returning empty result",
		"op", op,
		"user_id", userID,
		"error", err)
}

// classifyWrite makes sure a primary write error carries a taxonomy kind
func classifyWrite(err error) error {
	if errors.Is(err, model.ErrSchemaMismatch) || errors.Is(err, model.ErrStoreUnavailable) || errors.Is(err, model.ErrInvalidArgument) {
		return err
	}
	return model.Classify(model.ErrStoreUnavailable, err)
}

func chatLimit(limit int) int {
	if limit <= 0 {
		return DefaultChatLimit
	}
	return limit
}
