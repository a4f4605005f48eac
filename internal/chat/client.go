package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/deepchat/internal/convlog"
	"github.com/ashureev/deepchat/internal/protocol"
	"github.com/ashureev/deepchat/internal/rating"
	"github.com/ashureev/deepchat/internal/render"
	"github.com/ashureev/deepchat/internal/transport"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	UserID             string
	Mode               Mode
	Renderer           *render.Renderer
	Listener           Listener
	ConversationLog    *convlog.Logger
	RatingDismissDelay time.Duration
	Logger             *slog.Logger
}

// Client bundles the session core. The transport strategy is bound
// separately with Bind since the push channel needs the client's
// reconciler as its event sink before it can be dialed.
type Client struct {
	Session    *Session
	Controller *Controller
	Reconciler *Reconciler
	Ratings    *rating.Manager

	conv   *convlog.Logger
	logger *slog.Logger

	mu       sync.Mutex
	strategy transport.Strategy
}

// NewClient builds the session core.
func NewClient(opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		conv:   opts.ConversationLog,
		logger: logger,
	}
	c.Session = NewSession(opts.UserID, opts.Mode, opts.Listener)
	c.Ratings = rating.NewManager(c.emitRating, opts.RatingDismissDelay, logger)
	c.Reconciler = NewReconciler(c.Session, opts.Renderer, c.Ratings, opts.ConversationLog, logger)
	c.Controller = NewController(c.Session, opts.Renderer, strategyFunc(c.currentStrategy), opts.ConversationLog, logger)
	return c
}

// Bind attaches the transport strategy. It must be called before the
// first Submit.
func (c *Client) Bind(s transport.Strategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategy = s
}

// Submit forwards to the controller.
func (c *Client) Submit(ctx context.Context, text string) error {
	return c.Controller.Submit(ctx, text)
}

// Close shuts down the transport and flushes the conversation log.
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.strategy
	c.strategy = nil
	c.mu.Unlock()

	var err error
	if s != nil {
		err = s.Close()
	}
	if closeErr := c.conv.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (c *Client) currentStrategy() transport.Strategy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strategy
}

// emitRating forwards a rating selection to the transport. Each selection
// click emits independently.
func (c *Client) emitRating(sessionID string, value int) {
	s := c.currentStrategy()
	if s == nil {
		c.logger.Warn("No transport bound, dropping rating submission", "session_id", sessionID)
		return
	}
	if err := s.SubmitRating(context.Background(), protocol.RatingSubmission{SessionID: sessionID, Rating: value}); err != nil {
		c.logger.Warn("Failed to submit rating", "session_id", sessionID, "error", err)
		return
	}
	c.conv.Log(convlog.Event{
		SessionID: sessionID,
		Direction: convlog.DirectionOutbound,
		EventType: "rating_submitted",
		Meta:      map[string]any{"rating": value},
	})
}

// strategyFunc adapts a late-bound strategy lookup to transport.Strategy.
type strategyFunc func() transport.Strategy

func (f strategyFunc) SubmitRun(ctx context.Context, req protocol.RunRequest) error {
	return f.resolve().SubmitRun(ctx, req)
}

func (f strategyFunc) SubmitFollowUp(ctx context.Context, answer protocol.FollowUpAnswer) error {
	return f.resolve().SubmitFollowUp(ctx, answer)
}

func (f strategyFunc) SubmitRating(ctx context.Context, submission protocol.RatingSubmission) error {
	return f.resolve().SubmitRating(ctx, submission)
}

func (f strategyFunc) Close() error {
	return f.resolve().Close()
}

func (f strategyFunc) resolve() transport.Strategy {
	if s := f(); s != nil {
		return s
	}
	return unboundStrategy{}
}

var errUnbound = errors.New("no transport strategy bound")

// unboundStrategy fails every call; it stands in until Bind is called.
type unboundStrategy struct{}

func (unboundStrategy) SubmitRun(context.Context, protocol.RunRequest) error {
	return errUnbound
}

func (unboundStrategy) SubmitFollowUp(context.Context, protocol.FollowUpAnswer) error {
	return errUnbound
}

func (unboundStrategy) SubmitRating(context.Context, protocol.RatingSubmission) error {
	return errUnbound
}

func (unboundStrategy) Close() error { return nil }
