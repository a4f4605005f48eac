package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/ashureev/deepchat/internal/protocol"
)

// Agent API paths served by the request/response mode.
const (
	RunAgentPath         = "/run-agent"
	FollowUpResponsePath = "/follow-up-response"
	SubmitEvaluationPath = "/submit-evaluation"
)

// RequestResponse is the one-exchange-per-turn transport. Each submission
// performs a single HTTP call and synthesizes the equivalent terminal
// event for the sink from the reply. A transport-level failure is returned
// to the caller; an agent-declared failure (non-2xx with an error body) is
// delivered as an error event like the push channel would.
type RequestResponse struct {
	baseURL string
	client  *http.Client
	sink    EventSink
	logger  *slog.Logger
}

// NewRequestResponse creates the request/response strategy for the given
// agent base URL.
func NewRequestResponse(baseURL string, sink EventSink, logger *slog.Logger) *RequestResponse {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestResponse{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
		sink:    sink,
		logger:  logger,
	}
}

// SubmitRun implements Strategy.
func (t *RequestResponse) SubmitRun(ctx context.Context, req protocol.RunRequest) error {
	return t.exchange(ctx, RunAgentPath, req, req.SessionID)
}

// SubmitFollowUp implements Strategy.
func (t *RequestResponse) SubmitFollowUp(ctx context.Context, answer protocol.FollowUpAnswer) error {
	return t.exchange(ctx, FollowUpResponsePath, answer, answer.SessionID)
}

// SubmitRating implements Strategy. The reply body carries nothing of
// interest and is discarded.
func (t *RequestResponse) SubmitRating(ctx context.Context, submission protocol.RatingSubmission) error {
	resp, err := t.post(ctx, SubmitEvaluationPath, submission)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("submit evaluation: agent returned status %d", resp.StatusCode)
	}
	return nil
}

// Close implements Strategy.
func (t *RequestResponse) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// exchange performs one call and delivers the terminal event. The reply is
// branched on its declared content kind: JSON body, binary body, or plain
// text.
func (t *RequestResponse) exchange(ctx context.Context, path string, payload any, sessionID string) error {
	resp, err := t.post(ctx, path, payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.sink.OnError(protocol.ErrorEvent{
			SessionID: sessionID,
			Error:     t.errorMessage(resp),
		})
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read agent reply: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	switch {
	case isBinaryMediaType(mediaType):
		t.sink.OnAgentResponse(protocol.AgentResponse{
			SessionID:   sessionID,
			Assistant:   base64.StdEncoding.EncodeToString(body),
			ContentType: protocol.ContentTypePDF,
		})
	case mediaType == "application/json":
		var reply struct {
			Assistant string `json:"assistant"`
		}
		if err := json.Unmarshal(body, &reply); err != nil {
			t.logger.Warn("Malformed JSON agent reply", "error", err)
		}
		t.sink.OnAgentResponse(protocol.AgentResponse{
			SessionID: sessionID,
			Assistant: reply.Assistant,
		})
	default:
		t.sink.OnAgentResponse(protocol.AgentResponse{
			SessionID: sessionID,
			Assistant: string(body),
		})
	}
	return nil
}

func (t *RequestResponse) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	return resp, nil
}

// errorMessage extracts the agent's declared error from a non-2xx reply,
// falling back to the HTTP status.
func (t *RequestResponse) errorMessage(resp *http.Response) string {
	var reply struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err == nil && reply.Error != "" {
		return reply.Error
	}
	return fmt.Sprintf("agent returned status %d", resp.StatusCode)
}

func isBinaryMediaType(mediaType string) bool {
	switch mediaType {
	case protocol.ContentTypePDF, "application/octet-stream":
		return true
	default:
		return false
	}
}
