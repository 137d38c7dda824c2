package message

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aura-health/aura/internal/domain/notification"
	"github.com/aura-health/aura/internal/platform/channel"
)

// -- Mock Repository --

type mockRepo struct {
	mu       sync.Mutex
	items    []*Message
	failSave bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{}
}

func (m *mockRepo) Create(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return fmt.Errorf("store down")
	}
	msg.SentAt = time.Now().UTC()
	m.items = append(m.items, msg)
	return nil
}

func (m *mockRepo) ListConversation(_ context.Context, conversationID string, limit, offset int) ([]*Message, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Message
	for _, msg := range m.items {
		if msg.ConversationID == conversationID {
			all = append(all, msg)
		}
	}
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *mockRepo) Conversations(_ context.Context, participantID string) ([]*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := make(map[string]*Conversation)
	for _, msg := range m.items {
		if msg.SenderID != participantID && msg.RecipientID != participantID {
			continue
		}
		peer := msg.SenderID
		if peer == participantID {
			peer = msg.RecipientID
		}
		c, ok := byID[msg.ConversationID]
		if !ok {
			c = &Conversation{ID: msg.ConversationID, PeerID: peer}
			byID[msg.ConversationID] = c
		}
		c.LastMessage = msg.Content
		c.LastSentAt = msg.SentAt
		if msg.RecipientID == participantID && msg.ReadAt == nil {
			c.Unread++
		}
	}
	var result []*Conversation
	for _, c := range byID {
		result = append(result, c)
	}
	return result, nil
}

func (m *mockRepo) MarkConversationRead(_ context.Context, conversationID, readerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	now := time.Now().UTC()
	for _, msg := range m.items {
		if msg.ConversationID == conversationID && msg.RecipientID == readerID && msg.ReadAt == nil {
			msg.ReadAt = &now
			count++
		}
	}
	return count, nil
}

func newTestService(repo Repository) (*Service, *channel.Registry[*notification.Notification]) {
	registry := channel.NewRegistry[*notification.Notification]()
	return NewService(repo, registry, zerolog.Nop()), registry
}

func recvSignal(t *testing.T, ch <-chan *notification.Notification) *notification.Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery signal")
	}
	return nil
}

// -- Tests --

func TestConversationKeyStable(t *testing.T) {
	a := ConversationKey("doctor-7", "patient-3")
	b := ConversationKey("patient-3", "doctor-7")
	if a != b {
		t.Errorf("key depends on argument order: %q vs %q", a, b)
	}
	if a != "doctor-7:patient-3" {
		t.Errorf("key = %q, want sorted join", a)
	}
}

func TestSendPersistsAndSignalsBothParticipants(t *testing.T) {
	repo := newMockRepo()
	svc, registry := newTestService(repo)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	senderCh := registry.Get("doctor-7").Subscribe(ctx)
	recipientCh := registry.Get("patient-3").Subscribe(ctx)

	m, err := svc.Send(context.Background(), "doctor-7", "patient-3", "results look good")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if m.ConversationID != ConversationKey("doctor-7", "patient-3") {
		t.Errorf("conversation = %q", m.ConversationID)
	}

	for _, ch := range []<-chan *notification.Notification{senderCh, recipientCh} {
		sig := recvSignal(t, ch)
		if sig.Type != notification.TypeChatMessage {
			t.Errorf("signal type = %q", sig.Type)
		}
		if sig.Message != "results look good" {
			t.Errorf("signal message = %q", sig.Message)
		}
	}
}

func TestSendValidation(t *testing.T) {
	svc, _ := newTestService(newMockRepo())
	ctx := context.Background()

	if _, err := svc.Send(ctx, "a", "", "hi"); err == nil {
		t.Error("expected error for empty recipient")
	}
	if _, err := svc.Send(ctx, "a", "b", ""); err == nil {
		t.Error("expected error for empty content")
	}
	if _, err := svc.Send(ctx, "a", "a", "hi"); err == nil {
		t.Error("expected error for self-message")
	}
}

func TestSendPropagatesStoreFailure(t *testing.T) {
	repo := newMockRepo()
	repo.failSave = true
	svc, registry := newTestService(repo)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := registry.Get("b").Subscribe(ctx)

	if _, err := svc.Send(context.Background(), "a", "b", "hi"); err == nil {
		t.Fatal("expected error when store fails")
	}
	select {
	case <-ch:
		t.Error("failed send must not signal")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestListConversationMarksRead(t *testing.T) {
	svc, _ := newTestService(newMockRepo())
	ctx := context.Background()

	svc.Send(ctx, "doctor-7", "patient-3", "first")
	svc.Send(ctx, "doctor-7", "patient-3", "second")

	items, total, err := svc.ListConversation(ctx, "patient-3", "doctor-7", 50, 0)
	if err != nil {
		t.Fatalf("ListConversation: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("total = %d, items = %d, want 2", total, len(items))
	}
	if items[0].Content != "first" {
		t.Errorf("items not oldest-first: %q", items[0].Content)
	}

	convs, err := svc.Conversations(ctx, "patient-3")
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convs))
	}
	if convs[0].Unread != 0 {
		t.Errorf("unread after reading thread = %d, want 0", convs[0].Unread)
	}
}

func TestConversationsIndex(t *testing.T) {
	svc, _ := newTestService(newMockRepo())
	ctx := context.Background()

	svc.Send(ctx, "doctor-7", "patient-3", "hello")
	svc.Send(ctx, "doctor-9", "patient-3", "checkup due")

	convs, err := svc.Conversations(ctx, "patient-3")
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("conversations = %d, want 2", len(convs))
	}
	peers := map[string]bool{}
	for _, c := range convs {
		peers[c.PeerID] = true
		if c.Unread != 1 {
			t.Errorf("conversation %q unread = %d, want 1", c.ID, c.Unread)
		}
	}
	if !peers["doctor-7"] || !peers["doctor-9"] {
		t.Errorf("peers = %v", peers)
	}
}
