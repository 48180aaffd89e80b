package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/egt-labs/egt-gpt/internal/ai"
	"github.com/egt-labs/egt-gpt/internal/common"
	"github.com/egt-labs/egt-gpt/internal/history"
	"github.com/egt-labs/egt-gpt/internal/identity"
)

// ValidationError marks a request the caller can fix; handlers map it to 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationf(msg string) error { return &ValidationError{Message: msg} }

// JobPublisher enqueues retitle jobs. Nil disables async retitling.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

// Service is the per-turn state machine: ensure a conversation exists,
// persist the incoming messages, invoke the relay, and (on the follow-up
// update call) persist the assistant reply.
type Service struct {
	history  *history.Store
	provider ai.Provider
	models   *ai.ModelTable

	params         ai.GenerationParams
	systemMessage  string
	titleMaxTokens int

	jobs      *JobRepo
	publisher JobPublisher
	logger    zerolog.Logger
}

func NewService(hist *history.Store, provider ai.Provider, models *ai.ModelTable, params ai.GenerationParams, systemMessage string, titleMaxTokens int, logger zerolog.Logger) *Service {
	if titleMaxTokens <= 0 {
		titleMaxTokens = 64
	}
	return &Service{
		history:        hist,
		provider:       provider,
		models:         models,
		params:         params,
		systemMessage:  systemMessage,
		titleMaxTokens: titleMaxTokens,
		logger:         logger,
	}
}

// WithRetitleJobs wires the async retitle path. Without it, fallback titles
// simply stay as they are.
func (s *Service) WithRetitleJobs(jobs *JobRepo, publisher JobPublisher) *Service {
	s.jobs = jobs
	s.publisher = publisher
	return s
}

type TurnMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Token   int    `json:"token,omitempty"`
}

type TurnRequest struct {
	ConversationID string
	Model          string // symbolic; resolved through the model table
	Messages       []TurnMessage
}

// Turn is the relay output handed to the transport layer. Exactly one of
// Fragments/Result is set, per the streaming flag.
type Turn struct {
	Conversation *history.Conversation
	Metadata     *ai.HistoryMetadata
	Model        string // resolved deployment id

	Fragments <-chan ai.Fragment
	Errs      <-chan error
	Result    *ai.Result
}

func relayMessages(systemMessage string, msgs []TurnMessage) []ai.Message {
	out := make([]ai.Message, 0, len(msgs)+1)
	if systemMessage != "" {
		out = append(out, ai.Message{Role: "system", Content: systemMessage})
	}
	for _, m := range msgs {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func validateTurn(msgs []TurnMessage) error {
	if len(msgs) == 0 {
		return validationf("messages is required")
	}
	last := msgs[len(msgs)-1]
	if last.Role != history.RoleUser {
		return validationf("last message must have role user")
	}
	if last.Content == "" {
		return validationf("message content is required")
	}
	return nil
}

// GenerateTurn runs the first phase of a conversation turn. The assistant
// reply is not persisted here; the client echoes it back through UpdateTurn
// once streaming completes.
func (s *Service) GenerateTurn(ctx context.Context, p *identity.Principal, req TurnRequest) (*Turn, error) {
	if err := validateTurn(req.Messages); err != nil {
		return nil, err
	}

	var conv *history.Conversation
	var err error
	if req.ConversationID == "" {
		title, fallback := s.synthesizeTitle(ctx, relayMessages("", req.Messages))
		conv, err = s.history.CreateConversation(ctx, p.ID, title)
		if err != nil {
			return nil, err
		}
		if fallback {
			s.enqueueRetitle(ctx, p.ID, conv.ID)
		}
	} else {
		conv, err = s.history.GetConversation(ctx, p.ID, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, history.ErrNotFound
		}
	}

	// A tool message, when present, immediately precedes the user message it
	// informed and is persisted in that order.
	if n := len(req.Messages); n >= 2 && req.Messages[n-2].Role == history.RoleTool {
		tool := req.Messages[n-2]
		if _, err := s.history.AppendMessage(ctx, p.ID, conv.ID, history.Message{
			ID:      tool.ID,
			Role:    history.RoleTool,
			Content: tool.Content,
		}, tool.Token); err != nil {
			return nil, err
		}
	}

	user := req.Messages[len(req.Messages)-1]
	if _, err := s.history.AppendMessage(ctx, p.ID, conv.ID, history.Message{
		ID:      user.ID,
		Role:    history.RoleUser,
		Content: user.Content,
	}, user.Token); err != nil {
		return nil, err
	}

	return s.relay(ctx, conv, req)
}

// Relay invokes the provider without touching the store. It backs the
// stateless /conversation route.
func (s *Service) Relay(ctx context.Context, req TurnRequest) (*Turn, error) {
	if err := validateTurn(req.Messages); err != nil {
		return nil, err
	}
	return s.relay(ctx, nil, req)
}

func (s *Service) relay(ctx context.Context, conv *history.Conversation, req TurnRequest) (*Turn, error) {
	params := s.params
	params.Model = s.models.Resolve(req.Model)

	turn := &Turn{Conversation: conv, Model: params.Model}
	if conv != nil {
		turn.Metadata = &ai.HistoryMetadata{
			ConversationID: conv.ID,
			Title:          conv.Title,
			Date:           conv.CreatedAt.Format(time.RFC3339),
		}
	}

	msgs := relayMessages(s.systemMessage, req.Messages)

	if params.Stream {
		sp, ok := s.provider.(ai.StreamProvider)
		if !ok {
			return nil, errors.New("provider does not support streaming")
		}
		turn.Fragments, turn.Errs = sp.StreamChat(ctx, msgs, params)
		return turn, nil
	}

	res, err := s.provider.Chat(ctx, msgs, params)
	if err != nil {
		return nil, err
	}
	turn.Result = res
	return turn, nil
}

// UpdateTurn is the second phase: the client echoes the assistant's final
// message (keyed by its client-attached id) so it becomes durable history.
func (s *Service) UpdateTurn(ctx context.Context, p *identity.Principal, req TurnRequest) (*history.Conversation, error) {
	if req.ConversationID == "" {
		return nil, validationf("conversation_id is required")
	}
	if len(req.Messages) == 0 {
		return nil, validationf("messages is required")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != history.RoleAssistant {
		return nil, validationf("no assistant message found")
	}

	conv, err := s.history.GetConversation(ctx, p.ID, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, history.ErrNotFound
	}

	if n := len(req.Messages); n >= 2 && req.Messages[n-2].Role == history.RoleTool {
		tool := req.Messages[n-2]
		if _, err := s.history.AppendMessage(ctx, p.ID, conv.ID, history.Message{
			ID:      tool.ID,
			Role:    history.RoleTool,
			Content: tool.Content,
		}, tool.Token); err != nil {
			return nil, err
		}
	}

	if _, err := s.history.AppendMessage(ctx, p.ID, conv.ID, history.Message{
		ID:      last.ID,
		Role:    history.RoleAssistant,
		Content: last.Content,
	}, last.Token); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Service) enqueueRetitle(ctx context.Context, userID, conversationID string) {
	if s.jobs == nil || s.publisher == nil {
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		s.logger.Warn().Err(err).Msg("retitle job id")
		return
	}
	job := &RetitleJob{
		ID:             jobID,
		UserID:         userID,
		ConversationID: conversationID,
		Status:         JobQueued,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("retitle job create")
		return
	}
	if err := s.publisher.PublishJob(ctx, job.ID); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("retitle job publish")
	}
}

// Retitle re-runs title synthesis for a stored conversation. Used by the
// worker; unlike the in-turn path it propagates provider failure.
func (s *Service) Retitle(ctx context.Context, userID, conversationID string) error {
	conv, err := s.history.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return history.ErrNotFound
	}

	msgs, err := s.history.GetMessages(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	relayMsgs := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		relayMsgs = append(relayMsgs, ai.Message{Role: m.Role, Content: m.Content})
	}

	title, err := s.titleCompletion(ctx, relayMsgs)
	if err != nil {
		return err
	}
	if title == "" {
		return errors.New("empty title")
	}

	conv.Title = title
	_, err = s.history.UpdateConversation(ctx, conv)
	return err
}

// --- history pass-throughs; ownership is enforced by the store partition ---

func (s *Service) Ensure(ctx context.Context) (bool, string) {
	return s.history.Ensure(ctx)
}

func (s *Service) ListConversations(ctx context.Context, p *identity.Principal, offset, limit int) ([]history.Conversation, error) {
	return s.history.ListConversations(ctx, p.ID, offset, limit)
}

func (s *Service) ReadConversation(ctx context.Context, p *identity.Principal, conversationID string) (*history.Conversation, []history.Message, error) {
	conv, err := s.history.GetConversation(ctx, p.ID, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, history.ErrNotFound
	}
	msgs, err := s.history.GetMessages(ctx, p.ID, conversationID)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

func (s *Service) RenameConversation(ctx context.Context, p *identity.Principal, conversationID, title string) (*history.Conversation, error) {
	if title == "" {
		return nil, validationf("title is required")
	}
	conv, err := s.history.GetConversation(ctx, p.ID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, history.ErrNotFound
	}
	conv.Title = title
	return s.history.UpdateConversation(ctx, conv)
}

func (s *Service) DeleteConversation(ctx context.Context, p *identity.Principal, conversationID string) (bool, error) {
	return s.history.DeleteConversation(ctx, p.ID, conversationID)
}

func (s *Service) DeleteAllConversations(ctx context.Context, p *identity.Principal) (int, error) {
	convs, err := s.history.ListConversations(ctx, p.ID, 0, 0)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, c := range convs {
		ok, err := s.history.DeleteConversation(ctx, p.ID, c.ID)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

func (s *Service) ClearMessages(ctx context.Context, p *identity.Principal, conversationID string) (int64, error) {
	return s.history.DeleteMessages(ctx, p.ID, conversationID)
}

func (s *Service) MessageFeedback(ctx context.Context, p *identity.Principal, messageID, feedback string) (*history.Message, error) {
	msg, err := s.history.UpdateMessageFeedback(ctx, p.ID, messageID, feedback)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, history.ErrNotFound
	}
	return msg, nil
}
