package progress

import (
	"context"
	"errors"

	"github.com/gapassess/gap/pkg/model"
	"github.com/gapassess/gap/pkg/repository"
	"github.com/gapassess/gap/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ErrSaveFailedMessage is shown to the user when an assessment could not be stored
const ErrSaveFailedMessage = "Your progress could not be saved, please retry."

// ErrNotSignedIn is returned when an operation needs a session and none is given
var ErrNotSignedIn = goerr.New("not signed in")

// UseCase exposes the assessment history of the signed-in user
type UseCase struct {
	store repository.HistoryStore
}

func New(store repository.HistoryStore) *UseCase {
	return &UseCase{store: store}
}

// SaveError carries the user-facing message next to the underlying cause
type SaveError struct {
	err error
}

func (x *SaveError) Error() string { return ErrSaveFailedMessage }
func (x *SaveError) Unwrap() error { return x.err }

// Save stores one assessment for the session's user. Failures are returned as *SaveError so
// hosts can show ErrSaveFailedMessage while errors.Is still matches the cause.
func (uc *UseCase) Save(ctx context.Context, session *model.Session, inputs model.AssessmentData, result model.PredictionResult) (*model.ProgressEntry, error) {
	userID := session.UserID()
	if userID == "" {
		return nil, goerr.Wrap(ErrNotSignedIn, "cannot save progress")
	}

	entry, err := uc.store.SaveProgress(ctx, userID, inputs, result)
	if err != nil {
		logging.From(ctx).Error("failed to save progress",
			"user_id", userID,
			"schema_mismatch", errors.Is(err, model.ErrSchemaMismatch),
			"error", err)
		return nil, &SaveError{err: err}
	}

	logging.From(ctx).Info("progress saved", "user_id", userID, "entry_id", entry.EntryID)
	return entry, nil
}

func (uc *UseCase) History(ctx context.Context, session *model.Session, dir model.SortDirection) []*model.ProgressEntry {
	return uc.store.GetProgressHistory(ctx, session.UserID(), dir)
}

func (uc *UseCase) Latest(ctx context.Context, session *model.Session) *model.ProgressEntry {
	return uc.store.GetLatestProgress(ctx, session.UserID())
}

func (uc *UseCase) Baseline(ctx context.Context, session *model.Session) *model.ProgressEntry {
	return uc.store.GetBaselineProgress(ctx, session.UserID())
}

// Comparison summarizes how the latest assessment differs from the baseline
type Comparison struct {
	Baseline *model.ProgressEntry
	Latest   *model.ProgressEntry
	Entries  int

	// HasScore is set when both entries carry a numeric score
	HasScore      bool
	BaselineScore float64
	LatestScore   float64
}

// Delta is LatestScore minus BaselineScore. Lower scores mean less dependence.
func (x *Comparison) Delta() float64 {
	return x.LatestScore - x.BaselineScore
}

// Improved reports whether the score went down since the baseline
func (x *Comparison) Improved() bool {
	return x.HasScore && x.Delta() < 0
}

// Compare returns nil when the user has no history
func (uc *UseCase) Compare(ctx context.Context, session *model.Session) *Comparison {
	history := uc.store.GetProgressHistory(ctx, session.UserID(), model.SortAsc)
	if len(history) == 0 {
		return nil
	}

	c := &Comparison{
		Baseline: history[0],
		Latest:   history[len(history)-1],
		Entries:  len(history),
	}

	base, ok1 := score(c.Baseline)
	latest, ok2 := score(c.Latest)
	if ok1 && ok2 {
		c.HasScore = true
		c.BaselineScore = base
		c.LatestScore = latest
	}
	return c
}

func score(entry *model.ProgressEntry) (float64, bool) {
	switch v := entry.ProgressPayload.Result["score"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
