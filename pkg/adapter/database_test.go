package adapter_test

import (
	"context"
	"testing"

	"github.com/gapassess/gap/pkg/adapter"
	"github.com/gapassess/gap/pkg/model"
	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
)

// testDatabase checks the table-like behavior shared by every Database implementation
func testDatabase(t *testing.T, db adapter.Database) {
	ctx := context.Background()
	userID := model.UserID(uuid.NewString())
	other := model.UserID(uuid.NewString())

	gt.NoError(t, db.UpsertProfile(ctx, userID))
	gt.NoError(t, db.UpsertProfile(ctx, userID))
	gt.NoError(t, db.UpsertProfile(ctx, other))

	t.Run("empty selects", func(t *testing.T) {
		rows, err := db.SelectProgressEntries(ctx, adapter.ProgressQuery{UserID: userID, Direction: model.SortAsc})
		gt.NoError(t, err)
		gt.A(t, rows).Length(0)

		chats, err := db.SelectChatMessages(ctx, adapter.ChatQuery{UserID: userID})
		gt.NoError(t, err)
		gt.A(t, chats).Length(0)

		recs, err := db.SelectRecommendations(ctx, nil)
		gt.NoError(t, err)
		gt.A(t, recs).Length(0)
	})

	var inserted []*adapter.ProgressRow
	t.Run("insert progress", func(t *testing.T) {
		for i := range 3 {
			row, err := db.InsertProgressEntry(ctx, &adapter.ProgressRow{
				EntryID: model.NewEntryID(),
				UserID:  userID,
				Inputs:  model.AssessmentData{"q1": float64(i)},
				Result:  model.PredictionResult{"score": float64(i * 10)},
			})
			gt.NoError(t, err)
			gt.True(t, row.RowID > 0)
			gt.False(t, row.CreatedAt.IsZero())
			if len(inserted) > 0 {
				gt.True(t, row.RowID > inserted[len(inserted)-1].RowID)
			}
			inserted = append(inserted, row)
		}

		_, err := db.InsertProgressEntry(ctx, &adapter.ProgressRow{
			EntryID: model.NewEntryID(),
			UserID:  other,
			Result:  model.PredictionResult{"score": float64(99)},
		})
		gt.NoError(t, err)
	})

	t.Run("select progress", func(t *testing.T) {
		asc, err := db.SelectProgressEntries(ctx, adapter.ProgressQuery{UserID: userID, Direction: model.SortAsc})
		gt.NoError(t, err)
		gt.A(t, asc).Length(3)
		for i, row := range asc {
			gt.Equal(t, row.EntryID, inserted[i].EntryID)
			gt.Equal(t, row.UserID, userID)
			gt.Equal(t, row.Result["score"], any(float64(i*10)))
		}

		desc, err := db.SelectProgressEntries(ctx, adapter.ProgressQuery{UserID: userID, Direction: model.SortDesc, Limit: 1})
		gt.NoError(t, err)
		gt.A(t, desc).Length(1)
		gt.Equal(t, desc[0].EntryID, inserted[2].EntryID)
	})

	t.Run("recommendations", func(t *testing.T) {
		gt.NoError(t, db.InsertRecommendation(ctx, &adapter.RecommendationRow{
			ProgressRowID: inserted[1].RowID,
			Analysis:      map[string]any{"tip": "reduce evenings"},
		}))

		recs, err := db.SelectRecommendations(ctx, []int64{inserted[0].RowID, inserted[1].RowID})
		gt.NoError(t, err)
		gt.A(t, recs).Length(1)
		gt.Equal(t, recs[0].ProgressRowID, inserted[1].RowID)
		gt.Equal(t, recs[0].Analysis.(map[string]any)["tip"], any("reduce evenings"))
	})

	t.Run("chat messages", func(t *testing.T) {
		gt.NoError(t, db.InsertChatMessage(ctx, &adapter.ChatRow{UserID: userID, Role: model.ChatRoleUser, Content: "first", SessionID: "s1"}))
		gt.NoError(t, db.InsertChatMessage(ctx, &adapter.ChatRow{UserID: userID, Role: model.ChatRoleModel, Content: "second", SessionID: "s1"}))
		gt.NoError(t, db.InsertChatMessage(ctx, &adapter.ChatRow{UserID: userID, Role: model.ChatRoleUser, Content: "third"}))

		all, err := db.SelectChatMessages(ctx, adapter.ChatQuery{UserID: userID, Limit: 50})
		gt.NoError(t, err)
		gt.A(t, all).Length(3)
		gt.Equal(t, all[0].Content, "first")
		gt.Equal(t, all[2].Content, "third")
		gt.Equal(t, all[2].SessionID, model.ChatSessionID(""))

		s1, err := db.SelectChatMessages(ctx, adapter.ChatQuery{UserID: userID, SessionID: "s1", Limit: 50})
		gt.NoError(t, err)
		gt.A(t, s1).Length(2)

		limited, err := db.SelectChatMessages(ctx, adapter.ChatQuery{UserID: userID, Limit: 2})
		gt.NoError(t, err)
		gt.A(t, limited).Length(2)
		gt.Equal(t, limited[0].Content, "first")
		gt.Equal(t, limited[1].Content, "second")
	})
}
