package store

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"murmur/internal/ident"
	"murmur/internal/kvstore"
	"murmur/internal/model"
)

// Counters holds the per-(conversation, user) unread and
// pending-commit counts. Adjustments clamp at zero so a decrement that
// raced a failed fan-out cannot drive a count negative.
type Counters struct {
	db  kvstore.Store
	mux sync.Mutex
}

func NewCounters(db kvstore.Store) *Counters {
	return &Counters{db: db}
}

const (
	counterUnread  = "unread"
	counterPending = "pending"
)

func counterKey(userID, kind string) string {
	return userID + "/" + kind
}

// AddUnread adjusts userID's unread count by delta.
func (s *Counters) AddUnread(conv ident.ID, userID string, delta int64) error {
	return s.adjust(conv, userID, counterUnread, delta)
}

// AddPending adjusts userID's pending-commit count by delta.
func (s *Counters) AddPending(conv ident.ID, userID string, delta int64) error {
	return s.adjust(conv, userID, counterPending, delta)
}

// Get reads both counters for (conv, userID). Absent counters read as
// zero.
func (s *Counters) Get(conv ident.ID, userID string) (*model.ConversationStat, error) {
	unread, err := s.read(conv, userID, counterUnread)
	if err != nil {
		return nil, err
	}
	pending, err := s.read(conv, userID, counterPending)
	if err != nil {
		return nil, err
	}
	return &model.ConversationStat{
		ConversationID: conv,
		UserID:         userID,
		Unread:         unread,
		PendingCommits: pending,
	}, nil
}

// DeleteConversation drops the whole conversation's counter partition.
func (s *Counters) DeleteConversation(conv ident.ID) error {
	return s.db.DeletePartition(statsPartition(conv))
}

func (s *Counters) adjust(conv ident.ID, userID, kind string, delta int64) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	cur, err := s.read(conv, userID, kind)
	if err != nil {
		return err
	}
	next := cur + delta
	if next < 0 {
		next = 0
	}
	return s.db.Put(statsPartition(conv), counterKey(userID, kind),
		[]byte(strconv.FormatInt(next, 10)))
}

func (s *Counters) read(conv ident.ID, userID, kind string) (int64, error) {
	raw, err := s.db.Get(statsPartition(conv), counterKey(userID, kind))
	if errors.Is(err, kvstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, errors.WithMessagef(err, "corrupt counter %s/%s", userID, kind)
	}
	return n, nil
}
