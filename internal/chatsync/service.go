// Package chatsync orchestrates message send/edit/delete/read across
// the message store, commit log, flag store, and counters, and pushes
// the resulting events to live sessions.
package chatsync

import (
	"murmur/internal/apperr"
	"murmur/internal/attach"
	"murmur/internal/ident"
	"murmur/internal/model"
	"murmur/internal/store"
)

// DefaultListLimit bounds list and commit-log pagination.
const DefaultListLimit = 250

// Publisher pushes a named event to the live sessions of the target
// users. Best-effort; implemented by the event broker.
type Publisher interface {
	Publish(event string, targets []string, payload interface{})
}

// Authorizer is the external permission collaborator consulted before
// a conversation is deleted for everyone.
type Authorizer interface {
	CanDeleteConversation(userID string, conv *model.Conversation) error
}

// MemberOnly permits conversation deletion by any non-soft-deleted
// member. The default when no other rule body is plugged in.
type MemberOnly struct{}

func (MemberOnly) CanDeleteConversation(userID string, conv *model.Conversation) error {
	m := conv.Member(userID)
	if m == nil || m.DeletedAt != nil {
		return apperr.Newf(apperr.Forbidden,
			"user %s may not delete conversation %s", userID, conv.ID)
	}
	return nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, []string, interface{}) {}

// Service is the sync service.
type Service struct {
	stores      *store.Bundle
	attachments attach.Storer
	events      Publisher
	authorizer  Authorizer
}

// New wires the service. A nil events publisher or authorizer falls
// back to a no-op publisher and the member-only rule.
func New(stores *store.Bundle, attachments attach.Storer, events Publisher,
	authorizer Authorizer) *Service {
	if events == nil {
		events = nopPublisher{}
	}
	if authorizer == nil {
		authorizer = MemberOnly{}
	}
	if attachments == nil {
		attachments = attach.Discard{}
	}
	return &Service{
		stores:      stores,
		attachments: attachments,
		events:      events,
		authorizer:  authorizer,
	}
}

// MessageDeletePayload is the messageDelete event body.
type MessageDeletePayload struct {
	MessageID      ident.ID `json:"messageID"`
	ConversationID ident.ID `json:"conversationID"`
}

// ConversationDeletePayload is the conversationDelete event body.
type ConversationDeletePayload struct {
	ConversationID ident.ID `json:"conversationID"`
}

// TypingPayload is the userTyping event body.
type TypingPayload struct {
	ConversationID ident.ID `json:"conversationID"`
	UserID         string   `json:"userID"`
}

// viewFor overlays userID's flag state on msg.
func (s *Service) viewFor(msg *model.Message, userID string) (*model.MessageView, error) {
	unread, err := s.stores.Flags.Has(msg.ConversationID, userID, msg.ID,
		model.FlagUnread)
	if err != nil {
		return nil, err
	}
	return &model.MessageView{Message: *msg, Unread: unread}, nil
}

// GetStats reads the unread and pending-commit counters for one member.
func (s *Service) GetStats(conv ident.ID, userID string) (*model.ConversationStat, error) {
	if _, err := s.stores.Conversations.Get(conv); err != nil {
		return nil, err
	}
	return s.stores.Counters.Get(conv, userID)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}

func without(members []string, userID string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m != userID {
			out = append(out, m)
		}
	}
	return out
}
