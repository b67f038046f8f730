package model

import (
	"github.com/m-mizutani/goerr/v2"
)

type ChatRole string

const (
	ChatRoleUser   ChatRole = "user"
	ChatRoleModel  ChatRole = "model"
	ChatRoleSystem ChatRole = "system"
)

// Validate checks if the role is one of the accepted roles
func (x ChatRole) Validate() error {
	switch x {
	case ChatRoleUser, ChatRoleModel, ChatRoleSystem:
		return nil
	default:
		return goerr.Wrap(ErrInvalidArgument, "invalid chat role", goerr.V("role", x))
	}
}

// ChatSessionID groups chat messages. Empty means the message has no session.
type ChatSessionID string

// ChatMessage is one persisted conversational turn.
type ChatMessage struct {
	UserID    UserID        `json:"user_id"`
	Role      ChatRole      `json:"role"`
	Content   string        `json:"content"`
	SessionID ChatSessionID `json:"session_id,omitempty"`
	CreatedAt string        `json:"created_at"`
}
