package progress_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gapassess/gap/pkg/adapter"
	"github.com/gapassess/gap/pkg/model"
	"github.com/gapassess/gap/pkg/repository"
	"github.com/gapassess/gap/pkg/usecase/progress"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

type brokenBlobStore struct {
	adapter.BlobStore
}

func (brokenBlobStore) Set(ctx context.Context, key string, data []byte) error {
	return goerr.New("quota exceeded")
}

func session(id model.UserID) *model.Session {
	return model.NewSession(&model.User{ID: id, Email: "u@example.com", Provider: model.ProviderEmail})
}

func TestSaveAndCompare(t *testing.T) {
	ctx := context.Background()
	uc := progress.New(repository.NewLocal(adapter.NewMemoryBlobStore()))
	s := session("U1")

	gt.Nil(t, uc.Compare(ctx, s))

	_, err := uc.Save(ctx, s, model.AssessmentData{"q1": 3}, model.PredictionResult{"score": 42})
	gt.NoError(t, err)
	_, err = uc.Save(ctx, s, model.AssessmentData{"q1": 2}, model.PredictionResult{"score": 30})
	gt.NoError(t, err)
	latest, err := uc.Save(ctx, s, model.AssessmentData{"q1": 1}, model.PredictionResult{"score": 10})
	gt.NoError(t, err)

	gt.A(t, uc.History(ctx, s, model.SortDesc)).Length(3)
	gt.Equal(t, uc.Latest(ctx, s).EntryID, latest.EntryID)
	gt.Equal(t, uc.Baseline(ctx, s).ProgressPayload.Result["score"], any(float64(42)))

	c := uc.Compare(ctx, s)
	gt.NotNil(t, c)
	gt.Equal(t, c.Entries, 3)
	gt.True(t, c.HasScore)
	gt.Equal(t, c.Delta(), float64(-32))
	gt.True(t, c.Improved())
}

func TestCompareWithoutScore(t *testing.T) {
	ctx := context.Background()
	uc := progress.New(repository.NewLocal(adapter.NewMemoryBlobStore()))
	s := session("U1")

	_, err := uc.Save(ctx, s, nil, model.PredictionResult{"level": "high"})
	gt.NoError(t, err)

	c := uc.Compare(ctx, s)
	gt.NotNil(t, c)
	gt.False(t, c.HasScore)
	gt.False(t, c.Improved())
	gt.Equal(t, c.Baseline.EntryID, c.Latest.EntryID)
}

func TestSaveFailureMessage(t *testing.T) {
	ctx := context.Background()
	uc := progress.New(repository.NewLocal(brokenBlobStore{adapter.NewMemoryBlobStore()}))

	_, err := uc.Save(ctx, session("U1"), nil, model.PredictionResult{"score": 1})
	gt.Error(t, err)
	gt.Equal(t, err.Error(), progress.ErrSaveFailedMessage)
	gt.True(t, errors.Is(err, model.ErrStoreUnavailable))

	var saveErr *progress.SaveError
	gt.True(t, errors.As(err, &saveErr))
}

func TestSaveRequiresSession(t *testing.T) {
	uc := progress.New(repository.NewLocal(adapter.NewMemoryBlobStore()))

	_, err := uc.Save(context.Background(), nil, nil, nil)
	gt.True(t, errors.Is(err, progress.ErrNotSignedIn))

	gt.A(t, uc.History(context.Background(), nil, model.SortAsc)).Length(0)
	gt.Nil(t, uc.Latest(context.Background(), nil))
}
