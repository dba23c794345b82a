// Package turn orchestrates a single chat turn: quota check, routing,
// generation, and persistence, in that order. The turn is the unit of
// work behind the streaming chat endpoint.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillchat/quill/internal/backend"
	"github.com/quillchat/quill/internal/conversation"
	"github.com/quillchat/quill/internal/log"
	"github.com/quillchat/quill/internal/quota"
	"github.com/quillchat/quill/internal/router"
)

// ErrEmptyMessage indicates a turn arrived without user text.
var ErrEmptyMessage = errors.New("message text is required")

// DefaultTimeout bounds a whole turn including generation.
const DefaultTimeout = 30 * time.Second

// Store is the persistence surface a turn needs.
// Implemented by *conversation.Store.
type Store interface {
	Create(ctx context.Context, ownerID, title string, messages []conversation.Message) (*conversation.Conversation, error)
	Get(ctx context.Context, id uuid.UUID, ownerID string) (*conversation.Conversation, error)
	CompleteTurn(ctx context.Context, id uuid.UUID, ownerID string, messages []conversation.Message, cost int, attachmentURL string) error
}

// Classifier decides which backend handles a turn.
// Implemented by *router.Router.
type Classifier interface {
	Classify(ctx context.Context, userText, attachmentType string) (router.Result, error)
}

// TitleGenerator names new conversations from their first message.
// Implemented by *backend.Titler.
type TitleGenerator interface {
	Generate(ctx context.Context, firstMessage string) string
}

// Request is one user turn.
type Request struct {
	// ConversationID is uuid.Nil for the first turn of a new
	// conversation.
	ConversationID uuid.UUID
	OwnerID        string
	Message        string
	AttachmentURL  string
	AttachmentType string
}

// Result is a completed turn. The reply text has already been
// streamed when a callback was given; Result carries the final state.
type Result struct {
	ConversationID uuid.UUID
	Title          string
	Created        bool
	Reply          string
	Usage          int
	Category       router.Category
	Remember       bool

	// PersistErr is set when the reply was generated but could not be
	// saved. The turn still counts as delivered.
	PersistErr error
}

// Config assembles an Orchestrator.
type Config struct {
	Store      Store
	Guard      *quota.Guard
	Classifier Classifier
	Text       backend.Backend
	Image      backend.Backend
	Document   backend.Backend
	Titler     TitleGenerator
	Timeout    time.Duration
	Logger     log.Logger
}

func (c *Config) validate() error {
	switch {
	case c.Store == nil:
		return errors.New("turn: Store is required")
	case c.Guard == nil:
		return errors.New("turn: Guard is required")
	case c.Classifier == nil:
		return errors.New("turn: Classifier is required")
	case c.Text == nil:
		return errors.New("turn: Text backend is required")
	case c.Image == nil:
		return errors.New("turn: Image backend is required")
	case c.Document == nil:
		return errors.New("turn: Document backend is required")
	case c.Titler == nil:
		return errors.New("turn: Titler is required")
	}
	return nil
}

// Orchestrator runs turns end to end.
type Orchestrator struct {
	store      Store
	guard      *quota.Guard
	classifier Classifier
	text       backend.Backend
	image      backend.Backend
	document   backend.Backend
	titler     TitleGenerator
	timeout    time.Duration
	logger     log.Logger
}

// New creates an orchestrator from a validated config.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Orchestrator{
		store:      cfg.Store,
		guard:      cfg.Guard,
		classifier: cfg.Classifier,
		text:       cfg.Text,
		image:      cfg.Image,
		document:   cfg.Document,
		titler:     cfg.Titler,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}, nil
}

// Run executes one turn. Order matters: the quota guard runs before
// any model call so over-budget conversations spend nothing, and the
// document path fails before backend dispatch for the same reason.
// Generation streams through cb when non-nil; persistence happens
// exactly once, after the reply is complete.
func (o *Orchestrator) Run(ctx context.Context, req Request, cb backend.StreamCallback) (*Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if req.OwnerID == "" {
		return nil, conversation.ErrEmptyOwner
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()

	if err := o.guard.Check(ctx, req.ConversationID, req.OwnerID); err != nil {
		return nil, err
	}

	// Load history for existing conversations. A missing conversation
	// fails here, before any model call.
	var history []conversation.Message
	if req.ConversationID != uuid.Nil {
		conv, err := o.store.Get(ctx, req.ConversationID, req.OwnerID)
		if err != nil {
			return nil, err
		}
		history = conv.Messages
	}

	decision, err := o.classifier.Classify(ctx, req.Message, req.AttachmentType)
	if err != nil {
		return nil, err
	}

	userMsg := conversation.NewUserMessage(req.Message)
	genReq := backend.Request{
		Messages:       append(append([]conversation.Message{}, history...), userMsg),
		AttachmentURL:  req.AttachmentURL,
		AttachmentType: req.AttachmentType,
	}

	genResult, err := o.dispatch(ctx, decision.Category, genReq, cb)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ConversationID: req.ConversationID,
		Reply:          genResult.Reply.Text(),
		Usage:          genResult.Usage,
		Category:       decision.Category,
		Remember:       decision.Remember,
	}

	merged := conversation.MergeTurn(genReq.Messages, []conversation.Message{genResult.Reply})
	o.persist(ctx, req, merged, genResult.Usage, result)

	o.logger.InfoContext(ctx, "turn completed",
		"conversation_id", result.ConversationID,
		"category", decision.Category,
		"usage", genResult.Usage,
		"created", result.Created,
		"duration", time.Since(start))
	return result, nil
}

// dispatch selects the backend for the routed category. An image
// decision without an actual attachment degrades to the text path
// rather than failing the turn.
func (o *Orchestrator) dispatch(ctx context.Context, cat router.Category, req backend.Request, cb backend.StreamCallback) (*backend.Result, error) {
	switch cat {
	case router.CategoryImage:
		if req.AttachmentURL == "" {
			return o.text.Generate(ctx, req, cb)
		}
		return o.image.Generate(ctx, req, cb)
	case router.CategoryDocument:
		return o.document.Generate(ctx, req, cb)
	default:
		return o.text.Generate(ctx, req, cb)
	}
}

// persist saves the completed turn. The reply has already been
// streamed to the client, so failures here degrade to a warning on
// the result instead of failing the turn. Uses a fresh deadline so a
// slow generation cannot starve the write.
func (o *Orchestrator) persist(ctx context.Context, req Request, merged []conversation.Message, usage int, result *Result) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if req.ConversationID == uuid.Nil {
		title := o.titler.Generate(pctx, req.Message)
		if title == "" {
			title = backend.FallbackTitle(req.Message)
		}
		conv, err := o.store.Create(pctx, req.OwnerID, title, nil)
		if err != nil {
			result.PersistErr = fmt.Errorf("create conversation: %w", err)
			o.logger.ErrorContext(ctx, "turn delivered but not persisted", "error", err)
			return
		}
		result.ConversationID = conv.ID
		result.Title = conv.Title
		result.Created = true
		req.ConversationID = conv.ID
	}

	err := o.store.CompleteTurn(pctx, req.ConversationID, req.OwnerID, merged, usage, req.AttachmentURL)
	if err != nil {
		result.PersistErr = fmt.Errorf("save turn: %w", err)
		o.logger.ErrorContext(ctx, "turn delivered but not persisted",
			"conversation_id", req.ConversationID, "error", err)
	}
}
