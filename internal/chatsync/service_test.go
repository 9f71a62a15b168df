package chatsync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"murmur/internal/apperr"
	"murmur/internal/attach"
	"murmur/internal/broker"
	"murmur/internal/ident"
	"murmur/internal/kvstore"
	"murmur/internal/model"
	"murmur/internal/store"
)

type capturedEvent struct {
	Event   string
	Targets []string
	Payload interface{}
}

type capturePublisher struct {
	mux    sync.Mutex
	events []capturedEvent
}

func (p *capturePublisher) Publish(event string, targets []string, payload interface{}) {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.events = append(p.events, capturedEvent{event, targets, payload})
}

func (p *capturePublisher) named(event string) []capturedEvent {
	p.mux.Lock()
	defer p.mux.Unlock()
	var out []capturedEvent
	for _, e := range p.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (p *capturePublisher) reset() {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.events = nil
}

func newTestService(t *testing.T) (*Service, *store.Bundle, *capturePublisher) {
	t.Helper()
	stores := store.NewBundle(kvstore.NewMemory())
	events := &capturePublisher{}
	return New(stores, attach.Discard{}, events, nil), stores, events
}

func members(ids ...string) []model.Member {
	out := make([]model.Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Member{UserID: id, EncryptionKey: "ek",
			SigningKey: "sk"})
	}
	return out
}

func newGroup(t *testing.T, svc *Service) *model.Conversation {
	t.Helper()
	conv, err := svc.CreateConversation("group", "aes", "ed25519",
		members("alice", "bob", "carol"))
	require.NoError(t, err)
	return conv
}

func newDM(t *testing.T, svc *Service) *model.Conversation {
	t.Helper()
	conv, err := svc.CreateConversation("", "aes", "ed25519",
		members("alice", "bob"))
	require.NoError(t, err)
	return conv
}

func send(t *testing.T, svc *Service, conv ident.ID, author, content string) *model.MessageView {
	t.Helper()
	view, err := svc.Send(SendInput{
		ConversationID: conv,
		AuthorID:       author,
		Content:        content,
		Type:           "text",
		Signature:      "sig",
		IV:             "iv",
	})
	require.NoError(t, err)
	return view
}

func TestSendFlagsAndCounters(t *testing.T) {
	svc, stores, events := newTestService(t)
	conv := newGroup(t, svc)

	view := send(t, svc, conv.ID, "alice", "hello")
	require.False(t, view.Unread, "author's own view is already read")
	require.Equal(t, "alice", view.AuthorID)

	// unread for every member except the author
	for _, userID := range []string{"bob", "carol"} {
		has, err := stores.Flags.Has(conv.ID, userID, view.ID, model.FlagUnread)
		require.NoError(t, err)
		require.True(t, has, "expected unread flag for %s", userID)

		stat, err := svc.GetStats(conv.ID, userID)
		require.NoError(t, err)
		require.EqualValues(t, 1, stat.Unread)
	}
	has, err := stores.Flags.Has(conv.ID, "alice", view.ID, model.FlagUnread)
	require.NoError(t, err)
	require.False(t, has)

	stat, err := svc.GetStats(conv.ID, "alice")
	require.NoError(t, err)
	require.Zero(t, stat.Unread)
	require.EqualValues(t, 1, stat.PendingCommits)

	// every member got a create commit
	for _, userID := range []string{"alice", "bob", "carol"} {
		commits, err := svc.ListMessageCommits(conv.ID, userID, 0, "", "")
		require.NoError(t, err)
		require.Len(t, commits, 1)
		require.Equal(t, model.CommitCreate, commits[0].Action)
		require.Equal(t, view.ID, commits[0].MessageID)
	}

	// message event to the other members, already-read variant to the author
	msgEvents := events.named(broker.EventMessage)
	require.Len(t, msgEvents, 2)
	require.Equal(t, []string{"bob", "carol"}, msgEvents[0].Targets)
	require.True(t, msgEvents[0].Payload.(*model.MessageView).Unread)
	require.Equal(t, []string{"alice"}, msgEvents[1].Targets)
	require.False(t, msgEvents[1].Payload.(*model.MessageView).Unread)
}

func TestSendEmptyMessage(t *testing.T) {
	svc, _, _ := newTestService(t)
	conv := newGroup(t, svc)

	_, err := svc.Send(SendInput{
		ConversationID: conv.ID,
		AuthorID:       "alice",
	})
	require.True(t, apperr.Is(err, apperr.EmptyMessage))

	// empty content is fine with an attachment; signature and iv are
	// normalized away
	view, err := svc.Send(SendInput{
		ConversationID: conv.ID,
		AuthorID:       "alice",
		Signature:      "sig",
		IV:             "iv",
		Uploads: []attach.Upload{
			{Name: "pic.png", MimeType: "image/png", Data: []byte("...")},
		},
	})
	require.NoError(t, err)
	require.Empty(t, view.Content)
	require.Empty(t, view.Signature)
	require.Empty(t, view.IV)
	require.Len(t, view.Attachments, 1)
}

func TestSendByNonMember(t *testing.T) {
	svc, _, _ := newTestService(t)
	conv := newGroup(t, svc)

	_, err := svc.Send(SendInput{
		ConversationID: conv.ID,
		AuthorID:       "mallory",
		Content:        "hi",
	})
	require.True(t, apperr.Is(err, apperr.Forbidden))
}

func TestSendRestoresLeftDMPartner(t *testing.T) {
	svc, stores, _ := newTestService(t)
	conv := newDM(t, svc)

	require.NoError(t, svc.LeaveConversation(conv.ID, "bob"))
	got, err := stores.Conversations.Get(conv.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, got.ActiveMemberIDs())

	send(t, svc, conv.ID, "alice", "you there?")

	got, err = stores.Conversations.Get(conv.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, got.ActiveMemberIDs(),
		"sending into a DM restores the left partner")
}

func TestEditCompactsCommits(t *testing.T) {
	svc, _, events := newTestService(t)
	conv := newGroup(t, svc)
	msg := send(t, svc, conv.ID, "alice", "first")
	events.reset()

	for _, content := range []string{"second", "third"} {
		view, err := svc.Edit(EditInput{
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			Content:        content,
			Signature:      "sig2",
			IV:             "iv2",
		})
		require.NoError(t, err)
		require.True(t, view.IsEdited)
		require.Equal(t, content, view.Content)
	}

	// the author's feed holds exactly one live commit, latest action wins
	commits, err := svc.ListMessageCommits(conv.ID, "alice", 0, "", "")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	require.Equal(t, model.CommitEdit, commits[0].Action)

	// other members still see their create commit
	commits, err = svc.ListMessageCommits(conv.ID, "bob", 0, "", "")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	require.Equal(t, model.CommitCreate, commits[0].Action)

	// each member got an individually targeted edit event per edit
	editEvents := events.named(broker.EventMessageEdit)
	require.Len(t, editEvents, 6)
	for _, e := range editEvents {
		require.Len(t, e.Targets, 1)
	}
}

func TestEditEmptyWithoutAttachments(t *testing.T) {
	svc, _, _ := newTestService(t)
	conv := newGroup(t, svc)
	msg := send(t, svc, conv.ID, "alice", "hello")

	_, err := svc.Edit(EditInput{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
	})
	require.True(t, apperr.Is(err, apperr.EmptyMessage))
}

func TestDeleteConvergence(t *testing.T) {
	svc, stores, _ := newTestService(t)
	conv := newGroup(t, svc)
	msg := send(t, svc, conv.ID, "alice", "ephemeral")

	require.NoError(t, svc.DeleteForUser(conv.ID, msg.ID, "alice"))
	require.NoError(t, svc.DeleteForUser(conv.ID, msg.ID, "bob"))

	// still visible to carol
	views, err := svc.List(conv.ID, "carol", 0, "", "")
	require.NoError(t, err)
	require.Len(t, views, 1)

	// hidden from the deleters
	views, err = svc.List(conv.ID, "alice", 0, "", "")
	require.NoError(t, err)
	require.Empty(t, views)

	// the last member's delete escalates to a full delete
	require.NoError(t, svc.DeleteForUser(conv.ID, msg.ID, "carol"))

	exists, err := stores.Messages.Exists(conv.ID, msg.ID)
	require.NoError(t, err)
	require.False(t, exists, "message record should be gone")

	for _, userID := range []string{"alice", "bob", "carol"} {
		commits, err := svc.ListMessageCommits(conv.ID, userID, 0, "", "")
		require.NoError(t, err)
		require.Empty(t, commits)
	}
}

func TestDeleteForUserEvents(t *testing.T) {
	svc, _, events := newTestService(t)
	conv := newGroup(t, svc)
	msg := send(t, svc, conv.ID, "bob", "hi")
	events.reset()

	require.NoError(t, svc.DeleteForUser(conv.ID, msg.ID, "alice"))

	delEvents := events.named(broker.EventMessageDelete)
	require.Len(t, delEvents, 1)
	require.Equal(t, []string{"alice"}, delEvents[0].Targets,
		"per-user delete notifies only that user")
	payload := delEvents[0].Payload.(*MessageDeletePayload)
	require.Equal(t, msg.ID, payload.MessageID)
	require.Equal(t, conv.ID, payload.ConversationID)

	// an unread message deleted for self releases the unread count
	stat, err := svc.GetStats(conv.ID, "alice")
	require.NoError(t, err)
	require.Zero(t, stat.Unread)
}

func TestFullDeleteNotifiesEveryMember(t *testing.T) {
	svc, _, events := newTestService(t)
	conv := newGroup(t, svc)
	msg := send(t, svc, conv.ID, "alice", "oops")
	events.reset()

	require.NoError(t, svc.Delete(conv.ID, msg.ID))

	delEvents := events.named(broker.EventMessageDelete)
	require.Len(t, delEvents, 1)
	require.Equal(t, []string{"alice", "bob", "carol"}, delEvents[0].Targets)

	for _, userID := range []string{"bob", "carol"} {
		stat, err := svc.GetStats(conv.ID, userID)
		require.NoError(t, err)
		require.Zero(t, stat.Unread)
	}
}

func TestMarkAsRead(t *testing.T) {
	svc, _, events := newTestService(t)
	conv := newGroup(t, svc)
	msg := send(t, svc, conv.ID, "alice", "read me")
	events.reset()

	require.NoError(t, svc.MarkAsRead(conv.ID, msg.ID, "bob"))

	stat, err := svc.GetStats(conv.ID, "bob")
	require.NoError(t, err)
	require.Zero(t, stat.Unread)

	views, err := svc.List(conv.ID, "bob", 0, "", "")
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.False(t, views[0].Unread)

	editEvents := events.named(broker.EventMessageEdit)
	require.Len(t, editEvents, 1)
	require.Equal(t, []string{"bob"}, editEvents[0].Targets)

	// idempotent: reading twice does not drive the counter below zero
	require.NoError(t, svc.MarkAsRead(conv.ID, msg.ID, "bob"))
	stat, err = svc.GetStats(conv.ID, "bob")
	require.NoError(t, err)
	require.Zero(t, stat.Unread)
}

func TestListPaginationIdempotence(t *testing.T) {
	svc, _, _ := newTestService(t)
	conv := newDM(t, svc)

	var sent []ident.ID
	for i := 0; i < 10; i++ {
		sent = append(sent, send(t, svc, conv.ID, "alice", "msg").ID)
	}

	first, err := svc.List(conv.ID, "bob", 4, "", "")
	require.NoError(t, err)
	require.Len(t, first, 4)
	require.Equal(t, sent[9], first[0].ID, "newest first")

	second, err := svc.List(conv.ID, "bob", 4, "", first[len(first)-1].ID)
	require.NoError(t, err)
	require.Len(t, second, 4)

	// disjoint, contiguous continuation
	require.Equal(t, sent[5], second[0].ID)
	seen := map[ident.ID]bool{}
	for _, v := range append(first, second...) {
		require.False(t, seen[v.ID], "duplicate id %s", v.ID)
		seen[v.ID] = true
	}
}

func TestListClampsLimit(t *testing.T) {
	require.Equal(t, DefaultListLimit, clampLimit(0))
	require.Equal(t, DefaultListLimit, clampLimit(-1))
	require.Equal(t, DefaultListLimit, clampLimit(9999))
	require.Equal(t, 10, clampLimit(10))
}

func TestLeaveConversationEscalatesToDestroy(t *testing.T) {
	svc, stores, events := newTestService(t)
	conv := newDM(t, svc)
	send(t, svc, conv.ID, "alice", "bye")
	events.reset()

	require.NoError(t, svc.LeaveConversation(conv.ID, "alice"))
	_, err := stores.Conversations.Get(conv.ID)
	require.NoError(t, err, "conversation survives while a member remains")

	require.NoError(t, svc.LeaveConversation(conv.ID, "bob"))
	_, err = stores.Conversations.Get(conv.ID)
	require.True(t, apperr.Is(err, apperr.NotFound))

	delEvents := events.named(broker.EventConversationDelete)
	require.Len(t, delEvents, 1)
	require.Equal(t, conv.ID,
		delEvents[0].Payload.(*ConversationDeletePayload).ConversationID)
}

func TestDeleteConversationPermission(t *testing.T) {
	svc, stores, _ := newTestService(t)
	conv := newGroup(t, svc)
	send(t, svc, conv.ID, "alice", "hello")

	err := svc.DeleteConversation(conv.ID, "mallory")
	require.True(t, apperr.Is(err, apperr.Forbidden))

	require.NoError(t, svc.DeleteConversation(conv.ID, "alice"))
	_, err = stores.Conversations.Get(conv.ID)
	require.True(t, apperr.Is(err, apperr.NotFound))
	msgs, err := stores.Messages.List(conv.ID, 0, "", "")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

// A two-member DM exchange walked from send to mutual deletion.
func TestDirectMessageLifecycle(t *testing.T) {
	svc, stores, _ := newTestService(t)
	conv := newDM(t, svc)

	msg := send(t, svc, conv.ID, "alice", "hi")

	statB, err := svc.GetStats(conv.ID, "bob")
	require.NoError(t, err)
	require.EqualValues(t, 1, statB.Unread)
	statA, err := svc.GetStats(conv.ID, "alice")
	require.NoError(t, err)
	require.Zero(t, statA.Unread)

	for _, userID := range []string{"alice", "bob"} {
		commits, err := stores.Commits.List(conv.ID, userID, 0, "", "")
		require.NoError(t, err)
		require.Len(t, commits, 1)
		require.Equal(t, model.CommitCreate, commits[0].Action)
	}

	// alice deletes for herself: her commit flips, bob is unaffected
	require.NoError(t, svc.DeleteForUser(conv.ID, msg.ID, "alice"))
	commits, err := stores.Commits.List(conv.ID, "alice", 0, "", "")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	require.Equal(t, model.CommitDelete, commits[0].Action)

	views, err := svc.List(conv.ID, "bob", 0, "", "")
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.True(t, views[0].Unread)

	// bob deletes too: the record disappears for everyone
	require.NoError(t, svc.DeleteForUser(conv.ID, msg.ID, "bob"))
	exists, err := stores.Messages.Exists(conv.ID, msg.ID)
	require.NoError(t, err)
	require.False(t, exists)
}
