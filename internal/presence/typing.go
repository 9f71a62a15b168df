// Package presence keeps the ephemeral typing-status records. Entries
// carry an explicit expiry timestamp checked on read; nothing here is
// durable or shared across processes.
package presence

import (
	"sort"
	"sync"
	"time"

	"gitlab.com/elixxir/ekv"

	"murmur/internal/ident"
)

// DefaultTTL is how long a typing record stays live without renewal.
const DefaultTTL = 10 * time.Second

type record struct {
	UserID    string    `json:"userID"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Typing tracks who is typing in which conversation. Records live in
// an ekv store; the keys index makes them enumerable per conversation
// since the store itself has no iteration.
type Typing struct {
	kv  ekv.KeyValue
	ttl time.Duration

	mux  sync.Mutex
	keys map[ident.ID]map[string]bool // conversation -> user ids with records
}

// New builds a typing tracker over kv. A zero ttl means DefaultTTL.
func New(kv ekv.KeyValue, ttl time.Duration) *Typing {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Typing{
		kv:   kv,
		ttl:  ttl,
		keys: make(map[ident.ID]map[string]bool),
	}
}

func typingKey(conv ident.ID, userID string) string {
	return "typing/" + string(conv) + "/" + userID
}

// Set records that userID is typing in conv, renewing the expiry.
func (t *Typing) Set(conv ident.ID, userID string) error {
	err := t.kv.SetInterface(typingKey(conv, userID), record{
		UserID:    userID,
		ExpiresAt: time.Now().Add(t.ttl),
	})
	if err != nil {
		return err
	}
	t.mux.Lock()
	set, ok := t.keys[conv]
	if !ok {
		set = make(map[string]bool)
		t.keys[conv] = set
	}
	set[userID] = true
	t.mux.Unlock()
	return nil
}

// Active returns the users whose typing records in conv have not
// expired, pruning stale entries as it reads.
func (t *Typing) Active(conv ident.ID) ([]string, error) {
	t.mux.Lock()
	defer t.mux.Unlock()

	now := time.Now()
	var out []string
	for userID := range t.keys[conv] {
		var rec record
		err := t.kv.GetInterface(typingKey(conv, userID), &rec)
		if err != nil {
			if !ekv.Exists(err) {
				delete(t.keys[conv], userID)
				continue
			}
			return nil, err
		}
		if now.After(rec.ExpiresAt) {
			_ = t.kv.Delete(typingKey(conv, userID))
			delete(t.keys[conv], userID)
			continue
		}
		out = append(out, userID)
	}
	if len(t.keys[conv]) == 0 {
		delete(t.keys, conv)
	}
	sort.Strings(out)
	return out, nil
}
