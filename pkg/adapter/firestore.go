package adapter

import (
	"context"
	"errors"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/gapassess/gap/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	colProfiles        = "profiles"
	colProgressEntries = "progress_entries"
	colRecommendations = "ai_recommendations"
	colChatMessages    = "chat_messages"
	colCounters        = "counters"
)

// Firestore implements Database on Cloud Firestore. Row ids come from counter documents
// incremented in the same transaction as the insert, which keeps them monotonic.
type Firestore struct {
	client *firestore.Client
	now    func() time.Time
}

type profileDoc struct {
	ID        string    `firestore:"id"`
	CreatedAt time.Time `firestore:"created_at"`
}

type progressDoc struct {
	RowID     int64          `firestore:"row_id"`
	EntryID   string         `firestore:"entry_id"`
	UserID    string         `firestore:"user_id"`
	Inputs    map[string]any `firestore:"inputs"`
	Result    map[string]any `firestore:"result"`
	CreatedAt time.Time      `firestore:"created_at"`
}

type recommendationDoc struct {
	ProgressRowID int64     `firestore:"progress_entry_id"`
	Analysis      any       `firestore:"analysis"`
	CreatedAt     time.Time `firestore:"created_at"`
}

type chatDoc struct {
	RowID     int64     `firestore:"row_id"`
	UserID    string    `firestore:"user_id"`
	Role      string    `firestore:"role"`
	Content   string    `firestore:"content"`
	SessionID string    `firestore:"session_id"`
	CreatedAt time.Time `firestore:"created_at"`
}

// NewFirestore creates a Firestore backed Database. The history and transcript queries need
// composite indexes on progress_entries (user_id, created_at, row_id) in both directions and
// on chat_messages (user_id, created_at, row_id) and (user_id, session_id, created_at, row_id).
// Deploy them from schema/firestore.indexes.json, e.g.
//
//	firebase deploy --only firestore:indexes
//
// Without them every select fails with FailedPrecondition.
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	if projectID == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "firestore project is required")
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, model.Classify(model.ErrStoreUnavailable,
			goerr.Wrap(err, "failed to create firestore client",
				goerr.V("project", projectID),
				goerr.V("database", databaseID)))
	}

	return &Firestore{client: client, now: time.Now}, nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) UpsertProfile(ctx context.Context, userID model.UserID) error {
	ref := f.client.Collection(colProfiles).Doc(string(userID))
	_, err := ref.Create(ctx, profileDoc{ID: string(userID), CreatedAt: f.now().UTC()})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return unavailable(goerr.Wrap(err, "failed to upsert profile", goerr.V("user_id", userID)))
	}
	return nil
}

// nextRowID increments the named counter inside tx and returns the new value
func (f *Firestore) nextRowID(tx *firestore.Transaction, counter string) (int64, error) {
	ref := f.client.Collection(colCounters).Doc(counter)

	var current int64
	snap, err := tx.Get(ref)
	switch {
	case status.Code(err) == codes.NotFound:
	case err != nil:
		return 0, err
	default:
		v, err := snap.DataAt("value")
		if err != nil {
			return 0, err
		}
		current, _ = v.(int64)
	}

	next := current + 1
	if err := tx.Set(ref, map[string]any{"value": next}); err != nil {
		return 0, err
	}
	return next, nil
}

func (f *Firestore) InsertProgressEntry(ctx context.Context, row *ProgressRow) (*ProgressRow, error) {
	out := *row
	out.CreatedAt = f.now().UTC()

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		rowID, err := f.nextRowID(tx, colProgressEntries)
		if err != nil {
			return err
		}
		out.RowID = rowID

		ref := f.client.Collection(colProgressEntries).Doc(string(row.EntryID))
		return tx.Create(ref, progressDoc{
			RowID:     rowID,
			EntryID:   string(row.EntryID),
			UserID:    string(row.UserID),
			Inputs:    row.Inputs,
			Result:    row.Result,
			CreatedAt: out.CreatedAt,
		})
	})
	if err != nil {
		return nil, unavailable(goerr.Wrap(err, "failed to insert progress entry", goerr.V("user_id", row.UserID)))
	}

	return &out, nil
}

func (f *Firestore) InsertRecommendation(ctx context.Context, row *RecommendationRow) error {
	ref := f.client.Collection(colRecommendations).Doc(strconv.FormatInt(row.ProgressRowID, 10))
	_, err := ref.Create(ctx, recommendationDoc{
		ProgressRowID: row.ProgressRowID,
		Analysis:      row.Analysis,
		CreatedAt:     f.now().UTC(),
	})
	if err != nil {
		return unavailable(goerr.Wrap(err, "failed to insert recommendation", goerr.V("progress_entry_id", row.ProgressRowID)))
	}
	return nil
}

func (f *Firestore) SelectProgressEntries(ctx context.Context, q ProgressQuery) ([]*ProgressRow, error) {
	dir := firestore.Asc
	if q.Direction.Normalize() == model.SortDesc {
		dir = firestore.Desc
	}

	query := f.client.Collection(colProgressEntries).
		Where("user_id", "==", string(q.UserID)).
		OrderBy("created_at", dir).
		OrderBy("row_id", dir)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []*ProgressRow
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, unavailable(goerr.Wrap(err, "failed to select progress entries", goerr.V("user_id", q.UserID)))
		}

		var d progressDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to decode progress entry", goerr.V("doc_id", doc.Ref.ID))
		}
		out = append(out, &ProgressRow{
			RowID:     d.RowID,
			EntryID:   model.EntryID(d.EntryID),
			UserID:    model.UserID(d.UserID),
			Inputs:    d.Inputs,
			Result:    d.Result,
			CreatedAt: d.CreatedAt,
		})
	}

	return out, nil
}

func (f *Firestore) SelectRecommendations(ctx context.Context, rowIDs []int64) ([]*RecommendationRow, error) {
	if len(rowIDs) == 0 {
		return nil, nil
	}

	refs := make([]*firestore.DocumentRef, 0, len(rowIDs))
	for _, id := range rowIDs {
		refs = append(refs, f.client.Collection(colRecommendations).Doc(strconv.FormatInt(id, 10)))
	}

	snaps, err := f.client.GetAll(ctx, refs)
	if err != nil {
		return nil, unavailable(goerr.Wrap(err, "failed to select recommendations"))
	}

	var out []*RecommendationRow
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var d recommendationDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to decode recommendation", goerr.V("doc_id", snap.Ref.ID))
		}
		out = append(out, &RecommendationRow{
			ProgressRowID: d.ProgressRowID,
			Analysis:      d.Analysis,
			CreatedAt:     d.CreatedAt,
		})
	}

	return out, nil
}

func (f *Firestore) InsertChatMessage(ctx context.Context, row *ChatRow) error {
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		rowID, err := f.nextRowID(tx, colChatMessages)
		if err != nil {
			return err
		}
		return tx.Create(f.client.Collection(colChatMessages).NewDoc(), chatDoc{
			RowID:     rowID,
			UserID:    string(row.UserID),
			Role:      string(row.Role),
			Content:   row.Content,
			SessionID: string(row.SessionID),
			CreatedAt: f.now().UTC(),
		})
	})
	if err != nil {
		return unavailable(goerr.Wrap(err, "failed to insert chat message", goerr.V("user_id", row.UserID)))
	}
	return nil
}

func (f *Firestore) SelectChatMessages(ctx context.Context, q ChatQuery) ([]*ChatRow, error) {
	query := f.client.Collection(colChatMessages).Where("user_id", "==", string(q.UserID))
	if q.SessionID != "" {
		query = query.Where("session_id", "==", string(q.SessionID))
	}
	query = query.OrderBy("created_at", firestore.Asc).OrderBy("row_id", firestore.Asc)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []*ChatRow
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, unavailable(goerr.Wrap(err, "failed to select chat messages", goerr.V("user_id", q.UserID)))
		}

		var d chatDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to decode chat message", goerr.V("doc_id", doc.Ref.ID))
		}
		out = append(out, &ChatRow{
			RowID:     d.RowID,
			UserID:    model.UserID(d.UserID),
			Role:      model.ChatRole(d.Role),
			Content:   d.Content,
			SessionID: model.ChatSessionID(d.SessionID),
			CreatedAt: d.CreatedAt,
		})
	}

	return out, nil
}

func unavailable(err error) error {
	return model.Classify(model.ErrStoreUnavailable, err)
}
