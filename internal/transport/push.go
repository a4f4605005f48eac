package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/ashureev/deepchat/internal/protocol"
	"github.com/coder/websocket"
)

// maxInboundMessageSize bounds a single inbound frame. Base64 PDF payloads
// arrive inline, so the limit is generous.
const maxInboundMessageSize = 32 << 20 // 32MB

// PushChannel is the persistent duplex transport. Inbound events are read
// by a single goroutine and handed to the sink in arrival order, matching
// the client's single-threaded event model.
type PushChannel struct {
	conn   *websocket.Conn
	sink   EventSink
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex
}

// DialPush connects to the agent's websocket endpoint and starts the read
// loop. serverURL is the http(s) base URL of the agent service.
func DialPush(ctx context.Context, serverURL string, sink EventSink, logger *slog.Logger) (*PushChannel, error) {
	if logger == nil {
		logger = slog.Default()
	}

	wsURL := strings.TrimSuffix(serverURL, "/") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: http.DefaultClient,
	})
	if err != nil {
		return nil, fmt.Errorf("dial push channel %s: %w", wsURL, err)
	}
	conn.SetReadLimit(maxInboundMessageSize)

	readCtx, cancel := context.WithCancel(context.Background())
	c := &PushChannel{
		conn:   conn,
		sink:   sink,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readLoop(readCtx)

	logger.Info("Push channel connected", "url", wsURL)
	return c, nil
}

// SubmitRun implements Strategy.
func (c *PushChannel) SubmitRun(ctx context.Context, req protocol.RunRequest) error {
	return c.send(ctx, protocol.EventRunAgent, req)
}

// SubmitFollowUp implements Strategy.
func (c *PushChannel) SubmitFollowUp(ctx context.Context, answer protocol.FollowUpAnswer) error {
	return c.send(ctx, protocol.EventFollowUpResponse, answer)
}

// SubmitRating implements Strategy.
func (c *PushChannel) SubmitRating(ctx context.Context, submission protocol.RatingSubmission) error {
	return c.send(ctx, protocol.EventSubmitEvaluation, submission)
}

// Close tears down the channel and stops the read loop.
func (c *PushChannel) Close() error {
	c.cancel()
	if err := c.conn.Close(websocket.StatusNormalClosure, "client closed"); err != nil {
		c.logger.Debug("Push channel close", "error", err)
	}
	<-c.done
	return nil
}

func (c *PushChannel) send(ctx context.Context, eventType string, payload any) error {
	raw, err := protocol.Encode(eventType, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, raw); err != nil {
		return fmt.Errorf("write %s: %w", eventType, err)
	}
	return nil
}

// readLoop delivers inbound events until the connection closes. No
// reordering or coalescing is performed.
func (c *PushChannel) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || ctx.Err() != nil {
				c.logger.Info("Push channel closed")
			} else {
				c.logger.Warn("Push channel read failed", "error", err)
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("Discarding malformed inbound frame", "error", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *PushChannel) dispatch(env protocol.Envelope) {
	switch env.Type {
	case protocol.EventReasoningUpdate:
		var ev protocol.ReasoningUpdate
		if err := env.Payload(&ev); err != nil {
			c.logger.Warn("Bad reasoning update payload", "error", err)
			return
		}
		c.sink.OnReasoningUpdate(ev)
	case protocol.EventFollowUpRequest:
		var ev protocol.FollowUpRequest
		if err := env.Payload(&ev); err != nil {
			c.logger.Warn("Bad follow-up request payload", "error", err)
			return
		}
		c.sink.OnFollowUpRequest(ev)
	case protocol.EventAgentResponse:
		var ev protocol.AgentResponse
		if err := env.Payload(&ev); err != nil {
			c.logger.Warn("Bad agent response payload", "error", err)
			return
		}
		c.sink.OnAgentResponse(ev)
	case protocol.EventRequestEvaluation:
		var ev protocol.EvaluationRequest
		if err := env.Payload(&ev); err != nil {
			c.logger.Warn("Bad evaluation request payload", "error", err)
			return
		}
		c.sink.OnRequestEvaluation(ev)
	case protocol.EventError:
		var ev protocol.ErrorEvent
		if err := env.Payload(&ev); err != nil {
			c.logger.Warn("Bad error payload", "error", err)
			return
		}
		c.sink.OnError(ev)
	default:
		c.logger.Debug("Ignoring unknown event type", "type", env.Type)
	}
}
