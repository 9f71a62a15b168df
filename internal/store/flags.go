package store

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"murmur/internal/ident"
	"murmur/internal/kvstore"
	"murmur/internal/model"
)

// Flags stores the per-user overlay: one partition per
// (conversation, user), keyed by message id plus flag name. Row
// present means flag set.
type Flags struct {
	db kvstore.Store
}

func NewFlags(db kvstore.Store) *Flags {
	return &Flags{db: db}
}

func flagKey(msg ident.ID, flag model.FlagName) string {
	return string(msg) + "/" + string(flag)
}

// Set raises flag on the message for userID. Setting an already-set
// flag is a no-op overwrite.
func (s *Flags) Set(conv ident.ID, userID string, msg ident.ID,
	flag model.FlagName) error {
	row := model.MessageFlag{
		ConversationID: conv,
		UserID:         userID,
		MessageID:      msg,
		Flag:           flag,
		CreatedAt:      time.Now(),
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return errors.WithMessagef(err, "marshal flag %s", flag)
	}
	return s.db.Put(flagsPartition(conv, userID), flagKey(msg, flag), raw)
}

// Clear removes flag for userID. Clearing an absent flag is a no-op.
func (s *Flags) Clear(conv ident.ID, userID string, msg ident.ID,
	flag model.FlagName) error {
	return s.db.Delete(flagsPartition(conv, userID), flagKey(msg, flag))
}

// Has reports whether flag is set on the message for userID.
func (s *Flags) Has(conv ident.ID, userID string, msg ident.ID,
	flag model.FlagName) (bool, error) {
	_, err := s.db.Get(flagsPartition(conv, userID), flagKey(msg, flag))
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClearMessage removes every flag on the message for all given members.
func (s *Flags) ClearMessage(conv ident.ID, members []string,
	msg ident.ID) error {
	for _, userID := range members {
		for _, flag := range []model.FlagName{model.FlagUnread, model.FlagDeleted} {
			if err := s.Clear(conv, userID, msg, flag); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteConversation drops every member's flag partition.
func (s *Flags) DeleteConversation(conv ident.ID, members []string) error {
	for _, userID := range members {
		if err := s.db.DeletePartition(flagsPartition(conv, userID)); err != nil {
			return err
		}
	}
	return nil
}
