package store

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"murmur/internal/ident"
	"murmur/internal/kvstore"
	"murmur/internal/model"
)

// Commits is the compacted change feed: one partition per
// (conversation, user) keyed by commit id, plus an index partition
// mapping message id to the live commit id so a newer action can
// replace the old entry instead of appending.
type Commits struct {
	db  kvstore.Store
	mux sync.Mutex
}

func NewCommits(db kvstore.Store) *Commits {
	return &Commits{db: db}
}

// Supersede records action for (conv, userID, msg), replacing any live
// commit for the same message. The second return reports whether a
// prior commit was replaced.
func (s *Commits) Supersede(conv ident.ID, userID string, msg ident.ID,
	action model.CommitAction) (*model.MessageCommit, bool, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	idxPart := commitIndexPartition(conv, userID)
	commitPart := commitsPartition(conv, userID)

	replaced := false
	prior, err := s.db.Get(idxPart, string(msg))
	if err == nil {
		if err := s.db.Delete(commitPart, string(prior)); err != nil {
			return nil, false, err
		}
		replaced = true
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		return nil, false, err
	}

	commit := &model.MessageCommit{
		ID:             ident.New(),
		ConversationID: conv,
		UserID:         userID,
		MessageID:      msg,
		Action:         action,
		CreatedAt:      time.Now(),
	}
	raw, err := json.Marshal(commit)
	if err != nil {
		return nil, false, errors.WithMessagef(err, "marshal commit %s", commit.ID)
	}
	if err := s.db.Put(commitPart, string(commit.ID), raw); err != nil {
		return nil, false, err
	}
	if err := s.db.Put(idxPart, string(msg), []byte(commit.ID)); err != nil {
		return nil, false, err
	}
	return commit, replaced, nil
}

// List scans userID's commit feed in descending commit-id order.
func (s *Commits) List(conv ident.ID, userID string, limit int,
	before, after ident.ID) ([]*model.MessageCommit, error) {
	recs, err := s.db.Scan(commitsPartition(conv, userID), kvstore.Query{
		Before: string(before),
		After:  string(after),
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.MessageCommit, 0, len(recs))
	for _, rec := range recs {
		commit := &model.MessageCommit{}
		if err := json.Unmarshal(rec.Value, commit); err != nil {
			return nil, errors.WithMessagef(err, "corrupt commit %s", rec.Key)
		}
		out = append(out, commit)
	}
	return out, nil
}

// DeleteMessage removes the live commit for msg from every given
// member's feed.
func (s *Commits) DeleteMessage(conv ident.ID, members []string,
	msg ident.ID) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	for _, userID := range members {
		idxPart := commitIndexPartition(conv, userID)
		prior, err := s.db.Get(idxPart, string(msg))
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := s.db.Delete(commitsPartition(conv, userID), string(prior)); err != nil {
			return err
		}
		if err := s.db.Delete(idxPart, string(msg)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteConversation drops every member's commit feed and index.
func (s *Commits) DeleteConversation(conv ident.ID, members []string) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	for _, userID := range members {
		if err := s.db.DeletePartition(commitsPartition(conv, userID)); err != nil {
			return err
		}
		if err := s.db.DeletePartition(commitIndexPartition(conv, userID)); err != nil {
			return err
		}
	}
	return nil
}
