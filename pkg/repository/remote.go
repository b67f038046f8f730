package repository

import (
	"context"
	"errors"

	"github.com/gapassess/gap/pkg/adapter"
	"github.com/gapassess/gap/pkg/model"
	"github.com/gapassess/gap/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Remote implements Repository on a hosted Database. The aiAnalysis payload of a result is
// kept out of the primary row and written as a linked recommendation record.
type Remote struct {
	db   adapter.Database
	opts options
}

var _ Repository = (*Remote)(nil)

func NewRemote(db adapter.Database, opts ...Option) *Remote {
	return &Remote{
		db:   db,
		opts: newOptions(opts),
	}
}

func (r *Remote) SaveProgress(ctx context.Context, userID model.UserID, inputs model.AssessmentData, result model.PredictionResult) (*model.ProgressEntry, error) {
	if userID == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "user id is required for storage")
	}

	inputs, result, err := model.NormalizePayload(inputs, result)
	if err != nil {
		return nil, model.Classify(model.ErrInvalidArgument, err)
	}

	// Profile existence is bookkeeping; a failure here does not block the primary write.
	r.opts.report(ctx, "ensure_profile", userID, r.db.UpsertProfile(ctx, userID))

	analysis, hasAnalysis := result.AIAnalysis()

	row, err := r.db.InsertProgressEntry(ctx, &adapter.ProgressRow{
		EntryID: r.opts.newEntryID(),
		UserID:  userID,
		Inputs:  inputs,
		Result:  result.WithoutAIAnalysis(),
	})
	if err != nil {
		err = classifyWrite(err)
		if errors.Is(err, model.ErrSchemaMismatch) {
			logging.From(ctx).Error("progress entry rejected by schema",
				"code", "schema_mismatch",
				"user_id", userID,
				"error", err)
		}
		return nil, goerr.Wrap(err, "failed to save progress", goerr.V("user_id", userID))
	}

	entry := toProgressEntry(row)
	if hasAnalysis {
		r.opts.report(ctx, "insert_recommendation", userID, r.db.InsertRecommendation(ctx, &adapter.RecommendationRow{
			ProgressRowID: row.RowID,
			Analysis:      analysis,
		}))
		// Attached even when the side record failed, so the caller still sees it.
		entry.ProgressPayload.Result = entry.ProgressPayload.Result.WithAIAnalysis(analysis)
	}

	return entry, nil
}

func (r *Remote) GetProgressHistory(ctx context.Context, userID model.UserID, dir model.SortDirection) []*model.ProgressEntry {
	return r.selectProgress(ctx, "get_progress_history", adapter.ProgressQuery{
		UserID:    userID,
		Direction: dir.Normalize(),
	})
}

func (r *Remote) GetLatestProgress(ctx context.Context, userID model.UserID) *model.ProgressEntry {
	return first(r.selectProgress(ctx, "get_latest_progress", adapter.ProgressQuery{
		UserID:    userID,
		Direction: model.SortDesc,
		Limit:     1,
	}))
}

func (r *Remote) GetBaselineProgress(ctx context.Context, userID model.UserID) *model.ProgressEntry {
	return first(r.selectProgress(ctx, "get_baseline_progress", adapter.ProgressQuery{
		UserID:    userID,
		Direction: model.SortAsc,
		Limit:     1,
	}))
}

func (r *Remote) selectProgress(ctx context.Context, op string, q adapter.ProgressQuery) []*model.ProgressEntry {
	if q.UserID == "" {
		return []*model.ProgressEntry{}
	}

	rows, err := r.db.SelectProgressEntries(ctx, q)
	if err != nil {
		readFailed(ctx, op, q.UserID, err)
		return []*model.ProgressEntry{}
	}

	return r.merge(ctx, q.UserID, rows)
}

// merge joins each row with its recommendation record. If recommendations cannot be read,
// entries are returned without enrichment.
func (r *Remote) merge(ctx context.Context, userID model.UserID, rows []*adapter.ProgressRow) []*model.ProgressEntry {
	entries := make([]*model.ProgressEntry, 0, len(rows))
	if len(rows) == 0 {
		return entries
	}

	rowIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		rowIDs = append(rowIDs, row.RowID)
	}

	analyses := make(map[int64]any)
	recs, err := r.db.SelectRecommendations(ctx, rowIDs)
	if err != nil {
		readFailed(ctx, "select_recommendations", userID, err)
	}
	for _, rec := range recs {
		if rec.Analysis != nil {
			analyses[rec.ProgressRowID] = rec.Analysis
		}
	}

	for _, row := range rows {
		entry := toProgressEntry(row)
		if analysis, ok := analyses[row.RowID]; ok {
			entry.ProgressPayload.Result = entry.ProgressPayload.Result.WithAIAnalysis(analysis)
		}
		entries = append(entries, entry)
	}
	return entries
}

func toProgressEntry(row *adapter.ProgressRow) *model.ProgressEntry {
	result := row.Result
	if result == nil {
		result = model.PredictionResult{}
	}
	return &model.ProgressEntry{
		EntryID:   row.EntryID,
		UserID:    row.UserID,
		Timestamp: model.FormatTimestamp(row.CreatedAt),
		ProgressPayload: model.ProgressPayload{
			Inputs: row.Inputs,
			Result: result,
		},
	}
}

func (r *Remote) SaveChatMessage(ctx context.Context, userID model.UserID, role model.ChatRole, content string, sessionID model.ChatSessionID) Outcome {
	if userID == "" {
		return r.opts.report(ctx, "save_chat_message", userID,
			goerr.Wrap(model.ErrInvalidArgument, "user id is required for chat logging"))
	}
	if err := role.Validate(); err != nil {
		return r.opts.report(ctx, "save_chat_message", userID, err)
	}

	r.opts.report(ctx, "ensure_profile", userID, r.db.UpsertProfile(ctx, userID))

	return r.opts.report(ctx, "save_chat_message", userID, r.db.InsertChatMessage(ctx, &adapter.ChatRow{
		UserID:    userID,
		Role:      role,
		Content:   content,
		SessionID: sessionID,
	}))
}

func (r *Remote) GetChatHistory(ctx context.Context, userID model.UserID, sessionID model.ChatSessionID, limit int) []*model.ChatMessage {
	if userID == "" {
		return []*model.ChatMessage{}
	}

	rows, err := r.db.SelectChatMessages(ctx, adapter.ChatQuery{
		UserID:    userID,
		SessionID: sessionID,
		Limit:     chatLimit(limit),
	})
	if err != nil {
		readFailed(ctx, "get_chat_history", userID, err)
		return []*model.ChatMessage{}
	}

	out := make([]*model.ChatMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, &model.ChatMessage{
			UserID:    row.UserID,
			Role:      row.Role,
			Content:   row.Content,
			SessionID: row.SessionID,
			CreatedAt: model.FormatTimestamp(row.CreatedAt),
		})
	}
	return out
}
