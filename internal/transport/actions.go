package transport

import (
	"murmur/internal/apperr"
	"murmur/internal/broker"
	"murmur/internal/chatsync"
	"murmur/internal/ident"
	"murmur/internal/presence"
	"murmur/internal/store"
)

// Authenticator resolves an access token to a user id. Token issuance
// and verification live outside the core.
type Authenticator interface {
	Authenticate(token string) (userID string, err error)
}

// CoreActions bundles the built-in action handlers and their
// collaborators.
type CoreActions struct {
	Auth          Authenticator
	Typing        *presence.Typing
	Conversations *store.Conversations
	Events        chatsync.Publisher
}

// Register installs the built-in actions on the router.
func (a *CoreActions) Register(r *Router) {
	r.Handle("authenticate", a.handleAuthenticate)
	r.Handle("checkOnlineUser", a.handleCheckOnlineUser)
	r.Handle("setTypingStatus", a.handleSetTypingStatus)
}

func (a *CoreActions) handleAuthenticate(ctx *Context) (interface{}, error) {
	var token string
	if err := ctx.Bind(&token); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, apperr.Invalid("payload", "access token required")
	}
	userID, err := a.Auth.Authenticate(token)
	if err != nil {
		return nil, err
	}
	ctx.Session.BindUser(userID)
	ctx.Registry.Register(ctx.Session, userID)
	return map[string]string{"userID": userID}, nil
}

func (a *CoreActions) handleCheckOnlineUser(ctx *Context) (interface{}, error) {
	var userIDs []string
	if err := ctx.Bind(&userIDs); err != nil {
		return nil, err
	}
	online := make(map[string]bool, len(userIDs))
	for _, userID := range userIDs {
		online[userID] = ctx.Registry.HasSession(userID)
	}
	return online, nil
}

func (a *CoreActions) handleSetTypingStatus(ctx *Context) (interface{}, error) {
	var convID string
	if err := ctx.Bind(&convID); err != nil {
		return nil, err
	}
	userID := ctx.UserID()
	if userID == "" {
		return nil, apperr.New(apperr.Forbidden, "authenticate first")
	}

	conv, err := a.Conversations.Get(ident.ID(convID))
	if err != nil {
		return nil, err
	}
	if conv.Member(userID) == nil {
		return nil, apperr.Newf(apperr.Forbidden,
			"user %s is not a member of %s", userID, conv.ID)
	}

	if err := a.Typing.Set(conv.ID, userID); err != nil {
		return nil, err
	}

	var others []string
	for _, member := range conv.ActiveMemberIDs() {
		if member != userID {
			others = append(others, member)
		}
	}
	a.Events.Publish(broker.EventUserTyping, others, &chatsync.TypingPayload{
		ConversationID: conv.ID,
		UserID:         userID,
	})
	return nil, nil
}
