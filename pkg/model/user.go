package model

import (
	"strings"

	"github.com/google/uuid"
)

type UserID string

func (x UserID) String() string { return string(x) }

type Provider string

const (
	ProviderEmail  Provider = "email"
	ProviderGoogle Provider = "google"
)

// User is an identity issued by the identity provider. CreatedAt is epoch milliseconds.
type User struct {
	ID        UserID   `json:"id"`
	Email     string   `json:"email"`
	Name      string   `json:"name,omitempty"`
	Provider  Provider `json:"provider"`
	CreatedAt int64    `json:"createdAt"`
}

// DisplayNameFromEmail returns the local part of an email address.
func DisplayNameFromEmail(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}

// Session binds an authenticated user to the chat session used for transcript grouping.
// Hosts pass it explicitly to every operation instead of keeping a process-wide current user.
type Session struct {
	User          *User
	ChatSessionID ChatSessionID
}

// NewSession starts a session for user with a fresh chat session id.
func NewSession(user *User) *Session {
	return &Session{
		User:          user,
		ChatSessionID: NewChatSessionID(),
	}
}

func (x *Session) UserID() UserID {
	if x == nil || x.User == nil {
		return ""
	}
	return x.User.ID
}

func NewChatSessionID() ChatSessionID {
	return ChatSessionID(uuid.New().String())
}
