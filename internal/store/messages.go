package store

import (
	"encoding/json"

	"github.com/pkg/errors"

	"murmur/internal/apperr"
	"murmur/internal/ident"
	"murmur/internal/kvstore"
	"murmur/internal/model"
)

// Messages stores the shared message records, one partition per
// conversation keyed by message id.
type Messages struct {
	db kvstore.Store
}

func NewMessages(db kvstore.Store) *Messages {
	return &Messages{db: db}
}

// Put writes msg, inserting or replacing.
func (s *Messages) Put(msg *model.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return errors.WithMessagef(err, "marshal message %s", msg.ID)
	}
	return s.db.Put(messagesPartition(msg.ConversationID), string(msg.ID), raw)
}

// Get loads one message.
func (s *Messages) Get(conv, id ident.ID) (*model.Message, error) {
	raw, err := s.db.Get(messagesPartition(conv), string(id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, apperr.Newf(apperr.NotFound, "message %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	msg := &model.Message{}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, errors.WithMessagef(err, "corrupt message %s", id)
	}
	return msg, nil
}

// Exists reports whether the message record is still present.
func (s *Messages) Exists(conv, id ident.ID) (bool, error) {
	_, err := s.db.Get(messagesPartition(conv), string(id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the message record.
func (s *Messages) Delete(conv, id ident.ID) error {
	return s.db.Delete(messagesPartition(conv), string(id))
}

// List scans a conversation's messages in descending id order. before
// and after are exclusive id bounds; zero values mean unbounded.
func (s *Messages) List(conv ident.ID, limit int, before, after ident.ID) (
	[]*model.Message, error) {
	recs, err := s.db.Scan(messagesPartition(conv), kvstore.Query{
		Before: string(before),
		After:  string(after),
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Message, 0, len(recs))
	for _, rec := range recs {
		msg := &model.Message{}
		if err := json.Unmarshal(rec.Value, msg); err != nil {
			return nil, errors.WithMessagef(err, "corrupt message %s", rec.Key)
		}
		out = append(out, msg)
	}
	return out, nil
}

// DeleteConversation drops every message of the conversation.
func (s *Messages) DeleteConversation(conv ident.ID) error {
	return s.db.DeletePartition(messagesPartition(conv))
}
