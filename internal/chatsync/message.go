package chatsync

import (
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"murmur/internal/apperr"
	"murmur/internal/attach"
	"murmur/internal/broker"
	"murmur/internal/ident"
	"murmur/internal/model"
)

// SendInput carries one send operation.
type SendInput struct {
	ConversationID ident.ID
	AuthorID       string
	Content        string
	Type           string
	Signature      string
	IV             string
	Uploads        []attach.Upload
}

// Send writes a new message, fans out create commits, unread flags and
// counter increments to every member, and pushes the message event.
// The author's own sessions get the already-read variant.
func (s *Service) Send(in SendInput) (*model.MessageView, error) {
	conv, err := s.stores.Conversations.Get(in.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.Member(in.AuthorID) == nil {
		return nil, apperr.Newf(apperr.Forbidden,
			"user %s is not a member of %s", in.AuthorID, conv.ID)
	}
	if in.Content == "" && len(in.Uploads) == 0 {
		return nil, apperr.New(apperr.EmptyMessage,
			"message needs content or at least one attachment")
	}

	sig, iv := in.Signature, in.IV
	if in.Content == "" {
		sig, iv = "", ""
	}

	// a previously-left DM partner who sends again is re-added
	if conv.IsDM() && len(conv.ActiveMemberIDs()) < len(conv.Members) {
		conv, err = s.stores.Conversations.RestoreMembers(conv.ID)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	msg := &model.Message{
		ID:             ident.New(),
		ConversationID: conv.ID,
		AuthorID:       in.AuthorID,
		Content:        in.Content,
		Signature:      sig,
		IV:             iv,
		Type:           in.Type,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	msg.Attachments, err = s.attachments.Persist(msg.ID, in.Uploads)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to persist attachments")
	}
	if err := s.stores.Messages.Put(msg); err != nil {
		return nil, err
	}

	members := conv.MemberIDs()
	err = broadcastWrite(members, func(userID string) error {
		_, replaced, err := s.stores.Commits.Supersede(conv.ID, userID,
			msg.ID, model.CommitCreate)
		if err != nil {
			return err
		}
		if !replaced {
			if err := s.stores.Counters.AddPending(conv.ID, userID, 1); err != nil {
				return err
			}
		}
		if userID == in.AuthorID {
			return nil
		}
		if err := s.stores.Flags.Set(conv.ID, userID, msg.ID,
			model.FlagUnread); err != nil {
			return err
		}
		return s.stores.Counters.AddUnread(conv.ID, userID, 1)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "send fan-out failed for %s", msg.ID)
	}

	jww.INFO.Printf("sync: message %s sent to %s by %s", msg.ID, conv.ID,
		in.AuthorID)
	s.events.Publish(broker.EventMessage, without(members, in.AuthorID),
		&model.MessageView{Message: *msg, Unread: true})
	view := &model.MessageView{Message: *msg, Unread: false}
	s.events.Publish(broker.EventMessage, []string{in.AuthorID}, view)
	return view, nil
}

// EditInput carries one edit operation.
type EditInput struct {
	ConversationID ident.ID
	MessageID      ident.ID
	Content        string
	Signature      string
	IV             string
}

// Edit updates the message content. Empty content is permitted only
// when the message already carries attachments. The edit commit is
// superseded for the author alone; other members see the update
// through their existing commit and the messageEdit event.
func (s *Service) Edit(in EditInput) (*model.MessageView, error) {
	conv, err := s.stores.Conversations.Get(in.ConversationID)
	if err != nil {
		return nil, err
	}
	msg, err := s.stores.Messages.Get(conv.ID, in.MessageID)
	if err != nil {
		return nil, err
	}
	if in.Content == "" && len(msg.Attachments) == 0 {
		return nil, apperr.New(apperr.EmptyMessage,
			"message needs content or at least one attachment")
	}

	sig, iv := in.Signature, in.IV
	if in.Content == "" {
		sig, iv = "", ""
	}

	msg.Content = in.Content
	msg.Signature = sig
	msg.IV = iv
	msg.IsEdited = true
	msg.UpdatedAt = time.Now()
	if err := s.stores.Messages.Put(msg); err != nil {
		return nil, err
	}

	_, replaced, err := s.stores.Commits.Supersede(conv.ID, msg.AuthorID,
		msg.ID, model.CommitEdit)
	if err != nil {
		return nil, err
	}
	if !replaced {
		if err := s.stores.Counters.AddPending(conv.ID, msg.AuthorID, 1); err != nil {
			return nil, err
		}
	}

	for _, userID := range conv.ActiveMemberIDs() {
		view, err := s.viewFor(msg, userID)
		if err != nil {
			return nil, err
		}
		s.events.Publish(broker.EventMessageEdit, []string{userID}, view)
	}
	return s.viewFor(msg, msg.AuthorID)
}

// DeleteForUser soft-deletes the message for one member. When every
// other member has already flagged it deleted, the call escalates to a
// full delete.
//
// The escalation check spans every member's flag row without any
// cross-member atomic boundary, so two members deleting concurrently
// from separate processes can both miss the escalation and leave an
// all-deleted message behind. Within one process the flag store
// serializes the writes and the window is closed.
func (s *Service) DeleteForUser(conv, msgID ident.ID, userID string) error {
	c, err := s.stores.Conversations.Get(conv)
	if err != nil {
		return err
	}
	msg, err := s.stores.Messages.Get(conv, msgID)
	if err != nil {
		return err
	}
	if c.Member(userID) == nil {
		return apperr.Newf(apperr.Forbidden,
			"user %s is not a member of %s", userID, conv)
	}

	flaggedByOthers := true
	for _, member := range c.MemberIDs() {
		if member == userID {
			continue
		}
		has, err := s.stores.Flags.Has(conv, member, msgID, model.FlagDeleted)
		if err != nil {
			return err
		}
		if !has {
			flaggedByOthers = false
			break
		}
	}
	if flaggedByOthers {
		return s.deleteMessage(c, msg)
	}

	if _, _, err := s.stores.Commits.Supersede(conv, userID, msgID,
		model.CommitDelete); err != nil {
		return err
	}
	if err := s.stores.Flags.Set(conv, userID, msgID, model.FlagDeleted); err != nil {
		return err
	}
	unread, err := s.stores.Flags.Has(conv, userID, msgID, model.FlagUnread)
	if err != nil {
		return err
	}
	if unread {
		if err := s.stores.Flags.Clear(conv, userID, msgID, model.FlagUnread); err != nil {
			return err
		}
		if err := s.stores.Counters.AddUnread(conv, userID, -1); err != nil {
			return err
		}
	}

	s.events.Publish(broker.EventMessageDelete, []string{userID},
		&MessageDeletePayload{MessageID: msgID, ConversationID: conv})
	return nil
}

// Delete removes the message for everyone.
func (s *Service) Delete(conv, msgID ident.ID) error {
	c, err := s.stores.Conversations.Get(conv)
	if err != nil {
		return err
	}
	msg, err := s.stores.Messages.Get(conv, msgID)
	if err != nil {
		return err
	}
	return s.deleteMessage(c, msg)
}

func (s *Service) deleteMessage(conv *model.Conversation, msg *model.Message) error {
	members := conv.MemberIDs()
	err := broadcastWrite(members, func(userID string) error {
		unread, err := s.stores.Flags.Has(conv.ID, userID, msg.ID,
			model.FlagUnread)
		if err != nil {
			return err
		}
		if unread {
			if err := s.stores.Counters.AddUnread(conv.ID, userID, -1); err != nil {
				return err
			}
		}
		if err := s.stores.Flags.ClearMessage(conv.ID, []string{userID},
			msg.ID); err != nil {
			return err
		}
		_, _, err = s.stores.Commits.Supersede(conv.ID, userID, msg.ID,
			model.CommitDelete)
		return err
	})
	if err != nil {
		return errors.WithMessagef(err, "delete fan-out failed for %s", msg.ID)
	}

	if err := s.attachments.Remove(msg.ID); err != nil {
		return errors.WithMessage(err, "failed to remove attachments")
	}
	if err := s.stores.Messages.Delete(conv.ID, msg.ID); err != nil {
		return err
	}

	jww.INFO.Printf("sync: message %s removed from %s", msg.ID, conv.ID)
	s.events.Publish(broker.EventMessageDelete, members,
		&MessageDeletePayload{MessageID: msg.ID, ConversationID: conv.ID})
	return nil
}

// MarkAsRead clears the unread flag for one member and pushes the
// re-derived view back to that member's sessions.
func (s *Service) MarkAsRead(conv, msgID ident.ID, userID string) error {
	if _, err := s.stores.Conversations.Get(conv); err != nil {
		return err
	}
	msg, err := s.stores.Messages.Get(conv, msgID)
	if err != nil {
		return err
	}

	unread, err := s.stores.Flags.Has(conv, userID, msgID, model.FlagUnread)
	if err != nil {
		return err
	}
	if unread {
		if err := s.stores.Flags.Clear(conv, userID, msgID, model.FlagUnread); err != nil {
			return err
		}
		if err := s.stores.Counters.AddUnread(conv, userID, -1); err != nil {
			return err
		}
	}

	view, err := s.viewFor(msg, userID)
	if err != nil {
		return err
	}
	s.events.Publish(broker.EventMessageEdit, []string{userID}, view)
	return nil
}

// List pages the conversation's messages for one member, newest first.
// startingID and endingID are exclusive bounds: results are older than
// endingID and newer than startingID. Messages the member has deleted
// are filtered out after the scan, so a page may come back short even
// when older messages remain.
func (s *Service) List(conv ident.ID, userID string, limit int,
	startingID, endingID ident.ID) ([]*model.MessageView, error) {
	if _, err := s.stores.Conversations.Get(conv); err != nil {
		return nil, err
	}
	msgs, err := s.stores.Messages.List(conv, clampLimit(limit), endingID,
		startingID)
	if err != nil {
		return nil, err
	}

	out := make([]*model.MessageView, 0, len(msgs))
	for _, msg := range msgs {
		deleted, err := s.stores.Flags.Has(conv, userID, msg.ID,
			model.FlagDeleted)
		if err != nil {
			return nil, err
		}
		if deleted {
			continue
		}
		view, err := s.viewFor(msg, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// ListMessageCommits pages one member's compacted change feed with the
// same pagination contract as List. Commits whose target message is
// deleted for the member, or gone entirely, are filtered out.
func (s *Service) ListMessageCommits(conv ident.ID, userID string, limit int,
	startingID, endingID ident.ID) ([]*model.MessageCommit, error) {
	if _, err := s.stores.Conversations.Get(conv); err != nil {
		return nil, err
	}
	commits, err := s.stores.Commits.List(conv, userID, clampLimit(limit),
		endingID, startingID)
	if err != nil {
		return nil, err
	}

	out := make([]*model.MessageCommit, 0, len(commits))
	for _, commit := range commits {
		deleted, err := s.stores.Flags.Has(conv, userID, commit.MessageID,
			model.FlagDeleted)
		if err != nil {
			return nil, err
		}
		if deleted {
			continue
		}
		exists, err := s.stores.Messages.Exists(conv, commit.MessageID)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		out = append(out, commit)
	}
	return out, nil
}
