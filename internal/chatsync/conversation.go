package chatsync

import (
	jww "github.com/spf13/jwalterweatherman"

	"murmur/internal/broker"
	"murmur/internal/ident"
	"murmur/internal/model"
)

// CreateConversation forms a conversation from member placeholders.
// Two members without a name is a DM, which reuses an existing
// conversation for the same pair.
func (s *Service) CreateConversation(name, encryption, signing string,
	members []model.Member) (*model.Conversation, error) {
	return s.stores.Conversations.Create(name, encryption, signing, members)
}

// DeleteConversation removes the conversation for everyone, gated by
// the permission collaborator.
func (s *Service) DeleteConversation(conv ident.ID, userID string) error {
	c, err := s.stores.Conversations.Get(conv)
	if err != nil {
		return err
	}
	if err := s.authorizer.CanDeleteConversation(userID, c); err != nil {
		return err
	}
	return s.destroyConversation(c)
}

// LeaveConversation soft-deletes the caller's own membership. When the
// last member leaves, the conversation is destroyed outright.
func (s *Service) LeaveConversation(conv ident.ID, userID string) error {
	c, empty, err := s.stores.Conversations.SoftDeleteMember(conv, userID)
	if err != nil {
		return err
	}
	if empty {
		return s.destroyConversation(c)
	}
	return nil
}

func (s *Service) destroyConversation(conv *model.Conversation) error {
	members := conv.MemberIDs()

	// drop attachment blobs before the message records go away
	msgs, err := s.stores.Messages.List(conv.ID, 0, "", "")
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if len(msg.Attachments) == 0 {
			continue
		}
		if err := s.attachments.Remove(msg.ID); err != nil {
			return err
		}
	}

	if err := s.stores.Counters.DeleteConversation(conv.ID); err != nil {
		return err
	}
	if err := s.stores.Messages.DeleteConversation(conv.ID); err != nil {
		return err
	}
	if err := s.stores.Commits.DeleteConversation(conv.ID, members); err != nil {
		return err
	}
	if err := s.stores.Flags.DeleteConversation(conv.ID, members); err != nil {
		return err
	}
	if err := s.stores.Conversations.Delete(conv); err != nil {
		return err
	}

	jww.INFO.Printf("sync: conversation %s destroyed", conv.ID)
	s.events.Publish(broker.EventConversationDelete, members,
		&ConversationDeletePayload{ConversationID: conv.ID})
	return nil
}
