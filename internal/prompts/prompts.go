package prompts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/egt-labs/egt-gpt/internal/store/docstore"
)

// TypePrompt is the document discriminator within the shared container.
const TypePrompt = "prompt"

var ErrNotFound = errors.New("prompts: not found")

// Prompt is a saved prompt a user can reuse when starting a turn. Prompts
// live in the same container as conversations, partitioned by userId.
type Prompt struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName,omitempty"`
	Title     string    `json:"title"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Store struct {
	docs *docstore.Store
}

func NewStore(docs *docstore.Store) *Store {
	return &Store{docs: docs}
}

func promptDoc(p *Prompt) (*docstore.Document, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return &docstore.Document{
		ID:        p.ID,
		UserID:    p.UserID,
		Type:      TypePrompt,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Data:      data,
	}, nil
}

func (s *Store) Create(ctx context.Context, userID, userName, title string, tags []string) (*Prompt, error) {
	now := time.Now().UTC()
	p := &Prompt{
		ID:        uuid.NewString(),
		Type:      TypePrompt,
		UserID:    userID,
		UserName:  userName,
		Title:     title,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc, err := promptDoc(p)
	if err != nil {
		return nil, err
	}
	if err := s.docs.Upsert(ctx, doc); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns the user's prompts, most recently updated first.
func (s *Store) List(ctx context.Context, userID string) ([]Prompt, error) {
	docs, err := s.docs.Find(ctx, docstore.Query{
		UserID:  userID,
		Type:    TypePrompt,
		OrderBy: "updated_at",
		Desc:    true,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Prompt, 0, len(docs))
	for _, d := range docs {
		var p Prompt
		if err := json.Unmarshal(d.Data, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) get(ctx context.Context, userID, promptID string) (*Prompt, error) {
	doc, err := s.docs.Get(ctx, userID, promptID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Type != TypePrompt {
		return nil, ErrNotFound
	}
	var p Prompt
	if err := json.Unmarshal(doc.Data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update rewrites the prompt text and tags and bumps updatedAt.
func (s *Store) Update(ctx context.Context, userID, promptID, title string, tags []string) (*Prompt, error) {
	p, err := s.get(ctx, userID, promptID)
	if err != nil {
		return nil, err
	}
	p.Title = title
	p.Tags = tags
	p.UpdatedAt = time.Now().UTC()

	doc, err := promptDoc(p)
	if err != nil {
		return nil, err
	}
	if err := s.docs.Upsert(ctx, doc); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes one prompt; deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, userID, promptID string) (bool, error) {
	return s.docs.Delete(ctx, userID, promptID)
}
