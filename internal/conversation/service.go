package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/memohai/relay/internal/assistant"
	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/pipeline"
)

// PipelineName is the name the service registers under.
const PipelineName = "conversation"

// Assistant answers one user turn.
type Assistant interface {
	Message(ctx context.Context, req assistant.Request, token string) (assistant.Response, error)
}

// Service answers decoded turns through the assistant backend.
type Service struct {
	channels  *channel.Registry
	store     StateStore
	assistant Assistant
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates the conversation pipeline.
func NewService(log *slog.Logger, channels *channel.Registry, store StateStore, backend Assistant) *Service {
	if log == nil {
		log = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Service{
		channels:  channels,
		store:     store,
		assistant: backend,
		validate:  v,
		logger:    log.With(slog.String("service", "conversation")),
		now:       time.Now,
	}
}

// Register adds the service to reg under name (PipelineName when blank).
func (s *Service) Register(reg *pipeline.Registry, name string) error {
	if strings.TrimSpace(name) == "" {
		name = PipelineName
	}
	return reg.Register(name, s.Run)
}

// Run is the pipeline entry point. params is the event payload plus the
// provider tag and the auth section.
func (s *Service) Run(ctx context.Context, params map[string]any) (map[string]any, error) {
	provider := pipeline.Provider(params)
	if provider == "" {
		return nil, errors.New("provider is required")
	}
	turn, err := s.channels.Decode(channel.ChannelType(provider), params)
	if err != nil {
		return nil, err
	}
	if err := s.validateTurn(turn); err != nil {
		return nil, err
	}
	conversationID := turn.ConversationID()
	if turn.IsEmpty() {
		s.logger.Debug("empty turn skipped", slog.String("conversation_id", conversationID))
		return map[string]any{
			"conversation_id": conversationID,
			"replies":         []string{},
			"skipped":         true,
		}, nil
	}

	state, err := s.store.Get(ctx, conversationID)
	switch {
	case errors.Is(err, ErrStateNotFound):
		state = State{
			ConversationID: conversationID,
			Provider:       turn.Provider.String(),
			SenderID:       turn.SenderID,
			RecipientID:    turn.RecipientID,
		}
	case err != nil:
		return nil, fmt.Errorf("load conversation state: %w", err)
	}

	resp, err := s.assistant.Message(ctx, assistant.Request{
		ConversationID: conversationID,
		Input:          assistant.Input{Text: turn.Text},
		Context:        state.Context,
	}, pipeline.AuthValue(params, pipeline.AuthToken))
	if err != nil {
		return nil, fmt.Errorf("assistant: %w", err)
	}

	if resp.Context != nil {
		state.Context = resp.Context
	}
	state.Turns++
	if turn.Timestamp > state.LastMessageAt {
		state.LastMessageAt = turn.Timestamp
	}
	state.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("save conversation state: %w", err)
	}

	replies := resp.Replies()
	if len(replies) > 0 {
		poster, ok := s.channels.GetPoster(turn.Provider)
		if !ok {
			return nil, fmt.Errorf("channel %s cannot post replies", turn.Provider)
		}
		for _, reply := range replies {
			if err := poster.Post(ctx, turn.ReplyTarget, reply); err != nil {
				return nil, fmt.Errorf("post reply: %w", err)
			}
		}
	}
	s.logger.Info("turn answered",
		slog.String("conversation_id", conversationID),
		slog.Int("replies", len(replies)),
		slog.Int("turns", state.Turns),
	)
	return map[string]any{
		"conversation_id": conversationID,
		"replies":         replies,
		"context":         state.Context,
	}, nil
}

func (s *Service) validateTurn(turn channel.Turn) error {
	err := s.validate.Struct(turn)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			msgs = append(msgs, fe.Field()+" is required")
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
