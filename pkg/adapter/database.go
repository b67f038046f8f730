package adapter

import (
	"context"
	"time"

	"github.com/gapassess/gap/pkg/model"
)

// Database is the hosted table capability behind the remote history backend. Every
// select is filtered by owner identity. A "no rows" result is an empty slice, never an error.
// Failures are classified with model.ErrSchemaMismatch or model.ErrStoreUnavailable.
type Database interface {
	// UpsertProfile makes sure a profile row exists for userID
	UpsertProfile(ctx context.Context, userID model.UserID) error

	// InsertProgressEntry inserts row and returns it with RowID and CreatedAt assigned
	InsertProgressEntry(ctx context.Context, row *ProgressRow) (*ProgressRow, error)

	// InsertRecommendation stores the enrichment side record of a progress entry
	InsertRecommendation(ctx context.Context, row *RecommendationRow) error

	// SelectProgressEntries returns the owner's rows ordered by (CreatedAt, RowID) in q.Direction
	SelectProgressEntries(ctx context.Context, q ProgressQuery) ([]*ProgressRow, error)

	// SelectRecommendations returns side records linked to any of rowIDs
	SelectRecommendations(ctx context.Context, rowIDs []int64) ([]*RecommendationRow, error)

	// InsertChatMessage appends one chat message row
	InsertChatMessage(ctx context.Context, row *ChatRow) error

	// SelectChatMessages returns the owner's messages in ascending order, capped by q.Limit in the query
	SelectChatMessages(ctx context.Context, q ChatQuery) ([]*ChatRow, error)
}

// ProgressRow is a row of the progress_entries collection. RowID is assigned by the
// database and increases monotonically with insertion order.
type ProgressRow struct {
	RowID     int64
	EntryID   model.EntryID
	UserID    model.UserID
	Inputs    model.AssessmentData
	Result    model.PredictionResult
	CreatedAt time.Time
}

// RecommendationRow is a row of the ai_recommendations collection, linked one-to-zero-or-one
// with a progress entry row.
type RecommendationRow struct {
	ProgressRowID int64
	Analysis      any
	CreatedAt     time.Time
}

// ChatRow is a row of the chat_messages collection
type ChatRow struct {
	RowID     int64
	UserID    model.UserID
	Role      model.ChatRole
	Content   string
	SessionID model.ChatSessionID
	CreatedAt time.Time
}

type ProgressQuery struct {
	UserID    model.UserID
	Direction model.SortDirection
	// Limit of zero means no limit
	Limit int
}

type ChatQuery struct {
	UserID model.UserID
	// SessionID filters to one session when non-empty
	SessionID model.ChatSessionID
	Limit     int
}
