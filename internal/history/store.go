package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/egt-labs/egt-gpt/internal/store/docstore"
)

// ErrNotFound covers both a missing record and a record owned by another
// user; callers cannot tell the two apart.
var ErrNotFound = errors.New("history: not found")

// Store is the history adapter over the document container. It exclusively
// owns the mapping from (userID, conversationID) to the message sequence.
// Every operation is partitioned by userID and fails closed across users.
type Store struct {
	docs *docstore.Store
}

func NewStore(docs *docstore.Store) *Store {
	return &Store{docs: docs}
}

// Ensure reports whether the backing container is reachable.
func (s *Store) Ensure(ctx context.Context) (bool, string) {
	return s.docs.Ensure(ctx)
}

func conversationDoc(conv *Conversation) (*docstore.Document, error) {
	data, err := json.Marshal(conv)
	if err != nil {
		return nil, err
	}
	return &docstore.Document{
		ID:        conv.ID,
		UserID:    conv.UserID,
		Type:      TypeConversation,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Data:      data,
	}, nil
}

func messageDoc(msg *Message) (*docstore.Document, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &docstore.Document{
		ID:             msg.ID,
		UserID:         msg.UserID,
		Type:           TypeMessage,
		ConversationID: msg.ConversationID,
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.CreatedAt,
		Data:           data,
	}, nil
}

func (s *Store) CreateConversation(ctx context.Context, userID, title string) (*Conversation, error) {
	now := time.Now().UTC()
	conv := &Conversation{
		ID:        uuid.NewString(),
		Type:      TypeConversation,
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc, err := conversationDoc(conv)
	if err != nil {
		return nil, err
	}
	if err := s.docs.Upsert(ctx, doc); err != nil {
		return nil, err
	}
	return conv, nil
}

// AppendMessage persists one message into an existing conversation and bumps
// the conversation's updatedAt. The message id is kept when the caller
// supplies one (assistant messages are client-keyed for idempotent
// association); createdAt is always server-assigned.
func (s *Store) AppendMessage(ctx context.Context, userID, conversationID string, msg Message, token int) (*Message, error) {
	conv, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNotFound
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Type = TypeMessage
	msg.ConversationID = conversationID
	msg.UserID = userID
	msg.Token = token
	msg.CreatedAt = time.Now().UTC()

	doc, err := messageDoc(&msg)
	if err != nil {
		return nil, err
	}
	if err := s.docs.Upsert(ctx, doc); err != nil {
		return nil, err
	}

	conv.UpdatedAt = msg.CreatedAt
	convDoc, err := conversationDoc(conv)
	if err != nil {
		return nil, err
	}
	if err := s.docs.Upsert(ctx, convDoc); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListConversations returns the user's conversations, most recently updated
// first. limit <= 0 means unbounded.
func (s *Store) ListConversations(ctx context.Context, userID string, offset, limit int) ([]Conversation, error) {
	docs, err := s.docs.Find(ctx, docstore.Query{
		UserID:  userID,
		Type:    TypeConversation,
		OrderBy: "updated_at",
		Desc:    true,
		Offset:  offset,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}

	convs := make([]Conversation, 0, len(docs))
	for _, d := range docs {
		var c Conversation
		if err := json.Unmarshal(d.Data, &c); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, nil
}

// GetConversation returns nil when the conversation is absent or foreign.
func (s *Store) GetConversation(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	doc, err := s.docs.Get(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Type != TypeConversation {
		return nil, nil
	}
	var conv Conversation
	if err := json.Unmarshal(doc.Data, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetMessages returns the conversation's messages in creation order.
func (s *Store) GetMessages(ctx context.Context, userID, conversationID string) ([]Message, error) {
	docs, err := s.docs.Find(ctx, docstore.Query{
		UserID:         userID,
		Type:           TypeMessage,
		ConversationID: conversationID,
		OrderBy:        "created_at",
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]Message, 0, len(docs))
	for _, d := range docs {
		var m Message
		if err := json.Unmarshal(d.Data, &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// UpdateConversation rewrites the title and bumps updatedAt. The caller must
// have fetched the conversation through GetConversation first, so ownership
// has already been proven within the partition.
func (s *Store) UpdateConversation(ctx context.Context, conv *Conversation) (*Conversation, error) {
	conv.UpdatedAt = time.Now().UTC()
	doc, err := conversationDoc(conv)
	if err != nil {
		return nil, err
	}
	if err := s.docs.Upsert(ctx, doc); err != nil {
		return nil, err
	}
	return conv, nil
}

// UpdateMessageFeedback annotates one message; nil when the message is
// absent or foreign.
func (s *Store) UpdateMessageFeedback(ctx context.Context, userID, messageID, feedback string) (*Message, error) {
	doc, err := s.docs.Get(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Type != TypeMessage {
		return nil, nil
	}

	var msg Message
	if err := json.Unmarshal(doc.Data, &msg); err != nil {
		return nil, err
	}
	msg.Feedback = feedback

	updated, err := messageDoc(&msg)
	if err != nil {
		return nil, err
	}
	updated.CreatedAt = doc.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	if err := s.docs.Upsert(ctx, updated); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessages clears a conversation's messages. Safe on an absent
// conversation; returns the number of messages removed.
func (s *Store) DeleteMessages(ctx context.Context, userID, conversationID string) (int64, error) {
	return s.docs.DeleteWhere(ctx, docstore.Query{
		UserID:         userID,
		Type:           TypeMessage,
		ConversationID: conversationID,
	})
}

// DeleteConversation removes the conversation and cascades to its messages.
// Idempotent: deleting an absent conversation returns false, not an error.
func (s *Store) DeleteConversation(ctx context.Context, userID, conversationID string) (bool, error) {
	if _, err := s.DeleteMessages(ctx, userID, conversationID); err != nil {
		return false, err
	}
	return s.docs.Delete(ctx, userID, conversationID)
}
