package auth

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/gapassess/gap/pkg/adapter"
	"github.com/gapassess/gap/pkg/model"
	"github.com/gapassess/gap/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const (
	// SessionKey holds the persisted user of the current session
	SessionKey = "gap_auth_user"
	// DraftKey holds an in-progress assessment. It is discarded on logout.
	DraftKey = "gadgetAssessmentProgress"

	minPasswordLength = 6

	demoEmail = "demo.user@gmail.com"
	demoName  = "Demo User"
)

// Mock is a stand-in identity provider. It accepts any email with a password of at least
// six characters and issues a fresh synthetic id on every login.
type Mock struct {
	blob        adapter.BlobStore
	latency     time.Duration
	googleDelay time.Duration
	newID       func() model.UserID
	now         func() time.Time
}

type Option func(*Mock)

// WithLatency simulates the round trip of a real provider. googleDelay applies to GoogleLogin.
func WithLatency(delay, googleDelay time.Duration) Option {
	return func(m *Mock) {
		m.latency = delay
		m.googleDelay = googleDelay
	}
}

func WithIDGenerator(f func() model.UserID) Option {
	return func(m *Mock) {
		m.newID = f
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Mock) {
		m.now = now
	}
}

func NewMock(blob adapter.BlobStore, opts ...Option) *Mock {
	m := &Mock{
		blob:  blob,
		newID: randomID,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// randomID returns 9 base36 characters. Not unique across users; fine for a mock.
func randomID() model.UserID {
	b := make([]byte, 9)
	for i := range b {
		b[i] = base36[rand.IntN(len(base36))]
	}
	return model.UserID(b)
}

func (m *Mock) Login(ctx context.Context, email, password string) (*model.Session, error) {
	if err := wait(ctx, m.latency); err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, goerr.Wrap(model.ErrInvalidCredentials, "password is too short", goerr.V("email", email))
	}
	return m.issue(ctx, email, model.DisplayNameFromEmail(email), model.ProviderEmail)
}

// Signup registers email. The mock applies no password rule at signup.
func (m *Mock) Signup(ctx context.Context, email, password string) (*model.Session, error) {
	if err := wait(ctx, m.latency); err != nil {
		return nil, err
	}
	return m.issue(ctx, email, model.DisplayNameFromEmail(email), model.ProviderEmail)
}

// GoogleLogin always signs in the fixed demo account
func (m *Mock) GoogleLogin(ctx context.Context) (*model.Session, error) {
	if err := wait(ctx, m.googleDelay); err != nil {
		return nil, err
	}
	return m.issue(ctx, demoEmail, demoName, model.ProviderGoogle)
}

func (m *Mock) issue(ctx context.Context, email, name string, provider model.Provider) (*model.Session, error) {
	user := &model.User{
		ID:        m.newID(),
		Email:     email,
		Name:      name,
		Provider:  provider,
		CreatedAt: m.now().UnixMilli(),
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal user")
	}
	if err := m.blob.Set(ctx, SessionKey, raw); err != nil {
		return nil, goerr.Wrap(err, "failed to persist session", goerr.V("user_id", user.ID))
	}

	logging.From(ctx).Info("signed in", "user_id", user.ID, "provider", provider)
	return model.NewSession(user), nil
}

// Current restores the persisted session. It returns nil when nobody is signed in or the
// stored session cannot be read.
func (m *Mock) Current(ctx context.Context) *model.Session {
	raw, err := m.blob.Get(ctx, SessionKey)
	if errors.Is(err, model.ErrBlobNotFound) {
		return nil
	}
	if err != nil {
		logging.From(ctx).Warn("failed to read session", "error", err)
		return nil
	}

	var user model.User
	if err := json.Unmarshal(raw, &user); err != nil || user.ID == "" {
		logging.From(ctx).Warn("stored session is malformed", "error", err)
		return nil
	}
	return model.NewSession(&user)
}

func (m *Mock) Logout(ctx context.Context) error {
	for _, key := range []string{SessionKey, DraftKey} {
		if err := m.blob.Remove(ctx, key); err != nil {
			return goerr.Wrap(err, "failed to clear session", goerr.V("key", key))
		}
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "sign in canceled")
	case <-timer.C:
		return nil
	}
}
