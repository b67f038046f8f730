package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gapassess/gap/pkg/adapter"
	"github.com/gapassess/gap/pkg/model"
	"github.com/gapassess/gap/pkg/usecase/auth"
	"github.com/m-mizutani/gt"
)

func fixedID(id model.UserID) auth.Option {
	return auth.WithIDGenerator(func() model.UserID { return id })
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	blob := adapter.NewMemoryBlobStore()
	m := auth.NewMock(blob, fixedID("k3j9x0a1b"), auth.WithClock(func() time.Time { return now }))

	session, err := m.Login(ctx, "alice@example.com", "secret1")
	gt.NoError(t, err)
	gt.Equal(t, session.UserID(), model.UserID("k3j9x0a1b"))
	gt.Equal(t, session.User.Email, "alice@example.com")
	gt.Equal(t, session.User.Name, "alice")
	gt.Equal(t, session.User.Provider, model.ProviderEmail)
	gt.Equal(t, session.User.CreatedAt, now.UnixMilli())
	gt.NotEqual(t, session.ChatSessionID, model.ChatSessionID(""))

	raw, err := blob.Get(ctx, auth.SessionKey)
	gt.NoError(t, err)
	gt.S(t, string(raw)).Contains(`"createdAt"`)
	gt.S(t, string(raw)).Contains(`"provider":"email"`)
}

func TestLoginShortPassword(t *testing.T) {
	ctx := context.Background()
	blob := adapter.NewMemoryBlobStore()
	m := auth.NewMock(blob)

	session, err := m.Login(ctx, "alice@example.com", "12345")
	gt.Error(t, err)
	gt.Nil(t, session)
	gt.True(t, errors.Is(err, model.ErrInvalidCredentials))

	gt.Nil(t, m.Current(ctx))
}

func TestSignupAcceptsAnyPassword(t *testing.T) {
	m := auth.NewMock(adapter.NewMemoryBlobStore())
	session, err := m.Signup(context.Background(), "bob@example.com", "1")
	gt.NoError(t, err)
	gt.Equal(t, session.User.Name, "bob")
	gt.Equal(t, len(session.UserID()), 9)
}

func TestGoogleLogin(t *testing.T) {
	m := auth.NewMock(adapter.NewMemoryBlobStore())
	session, err := m.GoogleLogin(context.Background())
	gt.NoError(t, err)
	gt.Equal(t, session.User.Email, "demo.user@gmail.com")
	gt.Equal(t, session.User.Name, "Demo User")
	gt.Equal(t, session.User.Provider, model.ProviderGoogle)
}

func TestIDsAreFreshPerLogin(t *testing.T) {
	ctx := context.Background()
	m := auth.NewMock(adapter.NewMemoryBlobStore())

	first, err := m.Login(ctx, "alice@example.com", "secret1")
	gt.NoError(t, err)
	second, err := m.Login(ctx, "alice@example.com", "secret1")
	gt.NoError(t, err)

	// same email, new synthetic identity
	gt.NotEqual(t, first.UserID(), second.UserID())
}

func TestCurrentAndLogout(t *testing.T) {
	ctx := context.Background()
	blob := adapter.NewMemoryBlobStore()
	m := auth.NewMock(blob, fixedID("abc123xyz"))

	gt.Nil(t, m.Current(ctx))

	_, err := m.Login(ctx, "alice@example.com", "secret1")
	gt.NoError(t, err)
	gt.NoError(t, blob.Set(ctx, auth.DraftKey, []byte(`{"step":3}`)))

	restored := auth.NewMock(blob).Current(ctx)
	gt.NotNil(t, restored)
	gt.Equal(t, restored.UserID(), model.UserID("abc123xyz"))
	gt.Equal(t, restored.User.Email, "alice@example.com")

	gt.NoError(t, m.Logout(ctx))
	gt.Nil(t, m.Current(ctx))
	_, err = blob.Get(ctx, auth.DraftKey)
	gt.True(t, errors.Is(err, model.ErrBlobNotFound))

	// logging out twice is harmless
	gt.NoError(t, m.Logout(ctx))
}

func TestCurrentMalformedSession(t *testing.T) {
	ctx := context.Background()
	blob := adapter.NewMemoryBlobStore()
	gt.NoError(t, blob.Set(ctx, auth.SessionKey, []byte("not json")))

	gt.Nil(t, auth.NewMock(blob).Current(ctx))
}

func TestLatencyHonorsContext(t *testing.T) {
	m := auth.NewMock(adapter.NewMemoryBlobStore(), auth.WithLatency(time.Hour, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Login(ctx, "alice@example.com", "secret1")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, context.Canceled))

	_, err = m.GoogleLogin(ctx)
	gt.True(t, errors.Is(err, context.Canceled))
}
