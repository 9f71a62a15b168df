package transport

import (
	"murmur/internal/apperr"
	"murmur/internal/attach"
	"murmur/internal/chatsync"
	"murmur/internal/ident"
	"murmur/internal/model"
)

// SyncActions exposes the sync service over the frame transport. Every
// action requires an authenticated session.
type SyncActions struct {
	Service *chatsync.Service
}

// Register installs the sync actions on the router.
func (a *SyncActions) Register(r *Router) {
	r.Handle("sendMessage", a.requireUser(a.handleSend))
	r.Handle("editMessage", a.requireUser(a.handleEdit))
	r.Handle("deleteMessage", a.requireUser(a.handleDelete))
	r.Handle("markAsRead", a.requireUser(a.handleMarkAsRead))
	r.Handle("listMessages", a.requireUser(a.handleList))
	r.Handle("listMessageCommits", a.requireUser(a.handleListCommits))
	r.Handle("createConversation", a.requireUser(a.handleCreateConversation))
	r.Handle("deleteConversation", a.requireUser(a.handleDeleteConversation))
	r.Handle("leaveConversation", a.requireUser(a.handleLeaveConversation))
	r.Handle("getConversationStats", a.requireUser(a.handleStats))
}

func (a *SyncActions) requireUser(h HandlerFunc) HandlerFunc {
	return func(ctx *Context) (interface{}, error) {
		if ctx.UserID() == "" {
			return nil, apperr.New(apperr.Forbidden, "authenticate first")
		}
		return h(ctx)
	}
}

type attachmentPayload struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type sendPayload struct {
	ConversationID string              `json:"conversationID"`
	Content        string              `json:"content"`
	Type           string              `json:"type"`
	Signature      string              `json:"signature"`
	IV             string              `json:"iv"`
	Attachments    []attachmentPayload `json:"attachments"`
}

func (a *SyncActions) handleSend(ctx *Context) (interface{}, error) {
	var p sendPayload
	if err := ctx.Bind(&p); err != nil {
		return nil, err
	}
	uploads := make([]attach.Upload, 0, len(p.Attachments))
	for _, att := range p.Attachments {
		uploads = append(uploads, attach.Upload{
			Name:     att.Name,
			MimeType: att.MimeType,
			Data:     att.Data,
		})
	}
	return a.Service.Send(chatsync.SendInput{
		ConversationID: ident.ID(p.ConversationID),
		AuthorID:       ctx.UserID(),
		Content:        p.Content,
		Type:           p.Type,
		Signature:      p.Signature,
		IV:             p.IV,
		Uploads:        uploads,
	})
}

type editPayload struct {
	ConversationID string `json:"conversationID"`
	MessageID      string `json:"messageID"`
	Content        string `json:"content"`
	Signature      string `json:"signature"`
	IV             string `json:"iv"`
}

func (a *SyncActions) handleEdit(ctx *Context) (interface{}, error) {
	var p editPayload
	if err := ctx.Bind(&p); err != nil {
		return nil, err
	}
	return a.Service.Edit(chatsync.EditInput{
		ConversationID: ident.ID(p.ConversationID),
		MessageID:      ident.ID(p.MessageID),
		Content:        p.Content,
		Signature:      p.Signature,
		IV:             p.IV,
	})
}

type deletePayload struct {
	ConversationID string `json:"conversationID"`
	MessageID      string `json:"messageID"`
	ForEveryone    bool   `json:"forEveryone"`
}

func (a *SyncActions) handleDelete(ctx *Context) (interface{}, error) {
	var p deletePayload
	if err := ctx.Bind(&p); err != nil {
		return nil, err
	}
	if p.ForEveryone {
		return nil, a.Service.Delete(ident.ID(p.ConversationID),
			ident.ID(p.MessageID))
	}
	return nil, a.Service.DeleteForUser(ident.ID(p.ConversationID),
		ident.ID(p.MessageID), ctx.UserID())
}

type readPayload struct {
	ConversationID string `json:"conversationID"`
	MessageID      string `json:"messageID"`
}

func (a *SyncActions) handleMarkAsRead(ctx *Context) (interface{}, error) {
	var p readPayload
	if err := ctx.Bind(&p); err != nil {
		return nil, err
	}
	return nil, a.Service.MarkAsRead(ident.ID(p.ConversationID),
		ident.ID(p.MessageID), ctx.UserID())
}

type listPayload struct {
	ConversationID string `json:"conversationID"`
	Limit          int    `json:"limit"`
	StartingID     string `json:"startingID"`
	EndingID       string `json:"endingID"`
}

func (a *SyncActions) handleList(ctx *Context) (interface{}, error) {
	var p listPayload
	if err := ctx.Bind(&p); err != nil {
		return nil, err
	}
	return a.Service.List(ident.ID(p.ConversationID), ctx.UserID(), p.Limit,
		ident.ID(p.StartingID), ident.ID(p.EndingID))
}

func (a *SyncActions) handleListCommits(ctx *Context) (interface{}, error) {
	var p listPayload
	if err := ctx.Bind(&p); err != nil {
		return nil, err
	}
	return a.Service.ListMessageCommits(ident.ID(p.ConversationID),
		ctx.UserID(), p.Limit, ident.ID(p.StartingID), ident.ID(p.EndingID))
}

type memberPayload struct {
	UserID        string `json:"userID"`
	EncryptionKey string `json:"encryptionKey"`
	SigningKey    string `json:"signingKey"`
}

type createConversationPayload struct {
	Name       string          `json:"name"`
	Encryption string          `json:"encryption"`
	Signing    string          `json:"signing"`
	Members    []memberPayload `json:"members"`
}

func (a *SyncActions) handleCreateConversation(ctx *Context) (interface{}, error) {
	var p createConversationPayload
	if err := ctx.Bind(&p); err != nil {
		return nil, err
	}
	members := make([]model.Member, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, model.Member{
			UserID:        m.UserID,
			EncryptionKey: m.EncryptionKey,
			SigningKey:    m.SigningKey,
		})
	}
	return a.Service.CreateConversation(p.Name, p.Encryption, p.Signing, members)
}

type conversationPayload struct {
	ConversationID string `json:"conversationID"`
}

func (a *SyncActions) handleDeleteConversation(ctx *Context) (interface{}, error) {
	var p conversationPayload
	if err := ctx.Bind(&p); err != nil {
		return nil, err
	}
	return nil, a.Service.DeleteConversation(ident.ID(p.ConversationID),
		ctx.UserID())
}

func (a *SyncActions) handleLeaveConversation(ctx *Context) (interface{}, error) {
	var p conversationPayload
	if err := ctx.Bind(&p); err != nil {
		return nil, err
	}
	return nil, a.Service.LeaveConversation(ident.ID(p.ConversationID),
		ctx.UserID())
}

func (a *SyncActions) handleStats(ctx *Context) (interface{}, error) {
	var p conversationPayload
	if err := ctx.Bind(&p); err != nil {
		return nil, err
	}
	return a.Service.GetStats(ident.ID(p.ConversationID), ctx.UserID())
}
