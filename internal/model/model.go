// Package model holds the persisted shapes. Records reference each
// other by id only; lookups go through the stores.
package model

import (
	"sort"
	"strings"
	"time"

	"murmur/internal/ident"
)

// Member is one user's entry in a conversation, carrying that member's
// key material. DeletedAt marks a soft removal; the entry itself stays
// until the conversation is destroyed.
type Member struct {
	UserID        string     `json:"userID"`
	EncryptionKey string     `json:"encryptionKey"`
	SigningKey    string     `json:"signingKey"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
}

// Conversation is the membership map plus metadata. A conversation with
// exactly two members and no name is a DM and is deduplicated by member
// pair.
type Conversation struct {
	ID         ident.ID           `json:"id"`
	Name       string             `json:"name,omitempty"`
	Encryption string             `json:"encryption,omitempty"`
	Signing    string             `json:"signing,omitempty"`
	Members    map[string]*Member `json:"members"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// IsDM reports whether c is a direct-message conversation.
func (c *Conversation) IsDM() bool {
	return c.Name == "" && len(c.Members) == 2
}

// Member returns the entry for userID, nil if the user was never a
// member.
func (c *Conversation) Member(userID string) *Member {
	return c.Members[userID]
}

// MemberIDs returns every member id, soft-deleted included, sorted for
// deterministic iteration.
func (c *Conversation) MemberIDs() []string {
	ids := make([]string, 0, len(c.Members))
	for id := range c.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActiveMemberIDs returns the ids of members not soft-deleted.
func (c *Conversation) ActiveMemberIDs() []string {
	var ids []string
	for id, m := range c.Members {
		if m.DeletedAt == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// PairKey builds the DM index key for a two-user set. Order of the
// arguments does not matter.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return strings.Join([]string{a, b}, "|")
}

// Attachment is the stored-blob metadata attached to a message. The
// blob itself lives with the attachment collaborator.
type Attachment struct {
	ID       ident.ID `json:"id"`
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Size     int64    `json:"size"`
}

// Message is the shared record of one message. Content is an opaque
// ciphertext; an empty content means the message carries attachments
// only, in which case Signature and IV are empty too.
type Message struct {
	ID             ident.ID     `json:"id"`
	ConversationID ident.ID     `json:"conversationID"`
	AuthorID       string       `json:"authorID"`
	Content        string       `json:"content"`
	Signature      string       `json:"signature,omitempty"`
	IV             string       `json:"iv,omitempty"`
	Type           string       `json:"type,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	IsEdited       bool         `json:"isEdited"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// FlagName is a per-user marker overlaid on a shared message.
type FlagName string

const (
	FlagUnread  FlagName = "UNREAD"
	FlagDeleted FlagName = "DELETED"
)

// MessageFlag is one presence record: the row existing means the flag
// is set for that user.
type MessageFlag struct {
	ConversationID ident.ID  `json:"conversationID"`
	UserID         string    `json:"userID"`
	MessageID      ident.ID  `json:"messageID"`
	Flag           FlagName  `json:"flag"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CommitAction is the latest action a commit records for a message.
type CommitAction string

const (
	CommitCreate CommitAction = "create"
	CommitEdit   CommitAction = "edit"
	CommitDelete CommitAction = "delete"
)

// MessageCommit is one entry of a user's compacted change feed. At most
// one live commit exists per (conversation, user, message); a newer
// action replaces the old entry.
type MessageCommit struct {
	ID             ident.ID     `json:"id"`
	ConversationID ident.ID     `json:"conversationID"`
	UserID         string       `json:"userID"`
	MessageID      ident.ID     `json:"messageID"`
	Action         CommitAction `json:"action"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// ConversationStat is the per-(conversation, user) counter pair.
type ConversationStat struct {
	ConversationID ident.ID `json:"conversationID"`
	UserID         string   `json:"userID"`
	Unread         int64    `json:"unread"`
	PendingCommits int64    `json:"pendingCommits"`
}

// MessageView is a message with one user's flag state applied. This is
// what list results and events carry.
type MessageView struct {
	Message
	Unread bool `json:"unread"`
}
