// Package store implements the entity stores over the partitioned
// key-value store: conversations, messages, per-user flags, the
// compacted commit log, and the counters.
package store

import (
	"murmur/internal/ident"
	"murmur/internal/kvstore"
)

// Partition naming. Every per-conversation partition embeds the
// conversation id so conversation-wide deletes are partition drops.
func conversationsPartition() string { return "conversations" }
func dmIndexPartition() string       { return "dm-index" }

func messagesPartition(conv ident.ID) string {
	return "messages/" + string(conv)
}

func flagsPartition(conv ident.ID, userID string) string {
	return "flags/" + string(conv) + "/" + userID
}

func commitsPartition(conv ident.ID, userID string) string {
	return "commits/" + string(conv) + "/" + userID
}

func commitIndexPartition(conv ident.ID, userID string) string {
	return "commit-index/" + string(conv) + "/" + userID
}

func statsPartition(conv ident.ID) string {
	return "stats/" + string(conv)
}

// Bundle groups the entity stores over one backing Store.
type Bundle struct {
	Conversations *Conversations
	Messages      *Messages
	Flags         *Flags
	Commits       *Commits
	Counters      *Counters
}

// NewBundle builds every entity store over db.
func NewBundle(db kvstore.Store) *Bundle {
	return &Bundle{
		Conversations: NewConversations(db),
		Messages:      NewMessages(db),
		Flags:         NewFlags(db),
		Commits:       NewCommits(db),
		Counters:      NewCounters(db),
	}
}
