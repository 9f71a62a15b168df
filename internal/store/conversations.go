package store

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"murmur/internal/apperr"
	"murmur/internal/ident"
	"murmur/internal/kvstore"
	"murmur/internal/model"
)

// Conversations stores the membership maps and the DM member-pair
// index.
type Conversations struct {
	db  kvstore.Store
	mux sync.Mutex
}

func NewConversations(db kvstore.Store) *Conversations {
	return &Conversations{db: db}
}

// Create builds a conversation from member placeholders. A two-member
// set without a name is a DM and reuses an existing conversation for
// the same pair, restoring any soft-deleted membership instead of
// inserting a duplicate.
func (s *Conversations) Create(name, encryption, signing string,
	members []model.Member) (*model.Conversation, error) {
	if len(members) < 2 {
		return nil, apperr.Invalid("members", "at least two members required")
	}
	memberMap := make(map[string]*model.Member, len(members))
	for i := range members {
		m := members[i]
		if m.UserID == "" {
			return nil, apperr.Invalid("members", "member without user id")
		}
		if _, dup := memberMap[m.UserID]; dup {
			return nil, apperr.Invalid("members", "duplicate member "+m.UserID)
		}
		memberMap[m.UserID] = &m
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	isDM := name == "" && len(memberMap) == 2
	if isDM {
		ids := make([]string, 0, 2)
		for id := range memberMap {
			ids = append(ids, id)
		}
		pair := model.PairKey(ids[0], ids[1])
		if existing, err := s.lookupDM(pair); err == nil {
			for _, m := range existing.Members {
				m.DeletedAt = nil
			}
			existing.UpdatedAt = time.Now()
			if err := s.save(existing); err != nil {
				return nil, err
			}
			jww.DEBUG.Printf("conversations: reused DM %s for pair %s",
				existing.ID, pair)
			return existing, nil
		} else if !errors.Is(err, kvstore.ErrNotFound) {
			return nil, err
		}
	}

	now := time.Now()
	conv := &model.Conversation{
		ID:         ident.New(),
		Name:       name,
		Encryption: encryption,
		Signing:    signing,
		Members:    memberMap,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.save(conv); err != nil {
		return nil, err
	}
	if isDM {
		ids := conv.MemberIDs()
		pair := model.PairKey(ids[0], ids[1])
		if err := s.db.Put(dmIndexPartition(), pair, []byte(conv.ID)); err != nil {
			return nil, errors.WithMessage(err, "failed to index DM pair")
		}
	}
	jww.INFO.Printf("conversations: created %s with %d members",
		conv.ID, len(conv.Members))
	return conv, nil
}

// Get loads a conversation by id.
func (s *Conversations) Get(id ident.ID) (*model.Conversation, error) {
	raw, err := s.db.Get(conversationsPartition(), string(id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, apperr.Newf(apperr.NotFound, "conversation %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	conv := &model.Conversation{}
	if err := json.Unmarshal(raw, conv); err != nil {
		return nil, errors.WithMessagef(err, "corrupt conversation %s", id)
	}
	return conv, nil
}

// RestoreMembers clears every member's soft-delete marker.
func (s *Conversations) RestoreMembers(id ident.ID) (*model.Conversation, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	conv, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	changed := false
	for _, m := range conv.Members {
		if m.DeletedAt != nil {
			m.DeletedAt = nil
			changed = true
		}
	}
	if !changed {
		return conv, nil
	}
	conv.UpdatedAt = time.Now()
	return conv, s.save(conv)
}

// SoftDeleteMember marks userID's membership as removed. The second
// return reports whether every membership is now soft-deleted, which
// escalates to a full conversation delete at the service layer.
func (s *Conversations) SoftDeleteMember(id ident.ID, userID string) (
	*model.Conversation, bool, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	conv, err := s.Get(id)
	if err != nil {
		return nil, false, err
	}
	m := conv.Member(userID)
	if m == nil {
		return nil, false, apperr.Newf(apperr.NotFound,
			"user %s is not a member of %s", userID, id)
	}
	if m.DeletedAt == nil {
		now := time.Now()
		m.DeletedAt = &now
		conv.UpdatedAt = now
		if err := s.save(conv); err != nil {
			return nil, false, err
		}
	}
	return conv, len(conv.ActiveMemberIDs()) == 0, nil
}

// Delete hard-deletes the conversation record and its DM index entry.
func (s *Conversations) Delete(conv *model.Conversation) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if conv.IsDM() {
		ids := conv.MemberIDs()
		if err := s.db.Delete(dmIndexPartition(),
			model.PairKey(ids[0], ids[1])); err != nil {
			return err
		}
	}
	return s.db.Delete(conversationsPartition(), string(conv.ID))
}

func (s *Conversations) lookupDM(pair string) (*model.Conversation, error) {
	raw, err := s.db.Get(dmIndexPartition(), pair)
	if err != nil {
		return nil, err
	}
	convRaw, err := s.db.Get(conversationsPartition(), string(raw))
	if err != nil {
		return nil, err
	}
	conv := &model.Conversation{}
	if err := json.Unmarshal(convRaw, conv); err != nil {
		return nil, errors.WithMessagef(err, "corrupt conversation %s", raw)
	}
	return conv, nil
}

func (s *Conversations) save(conv *model.Conversation) error {
	raw, err := json.Marshal(conv)
	if err != nil {
		return errors.WithMessagef(err, "marshal conversation %s", conv.ID)
	}
	return s.db.Put(conversationsPartition(), string(conv.ID), raw)
}
