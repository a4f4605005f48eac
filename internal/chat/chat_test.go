package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/deepchat/internal/protocol"
	"github.com/ashureev/deepchat/internal/render"
)

// fakeStrategy records outbound submissions without touching the network.
type fakeStrategy struct {
	mu        sync.Mutex
	runs      []protocol.RunRequest
	followUps []protocol.FollowUpAnswer
	ratings   []protocol.RatingSubmission
	err       error
}

func (f *fakeStrategy) SubmitRun(_ context.Context, req protocol.RunRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, req)
	return nil
}

func (f *fakeStrategy) SubmitFollowUp(_ context.Context, answer protocol.FollowUpAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.followUps = append(f.followUps, answer)
	return nil
}

func (f *fakeStrategy) SubmitRating(_ context.Context, submission protocol.RatingSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratings = append(f.ratings, submission)
	return nil
}

func (f *fakeStrategy) Close() error { return nil }

func (f *fakeStrategy) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func newTestClient(t *testing.T, mode Mode) (*Client, *fakeStrategy) {
	t.Helper()
	strategy := &fakeStrategy{}
	client := NewClient(ClientOptions{
		Mode:               mode,
		Renderer:           render.New(&render.FileDownloader{Dir: t.TempDir()}),
		RatingDismissDelay: time.Hour,
	})
	client.Bind(strategy)
	return client, strategy
}

func TestSubmitShapesRunRequest(t *testing.T) {
	t.Parallel()
	client, strategy := newTestClient(t, ModePush)

	client.Controller.ToggleDeepSearch()
	client.Controller.SetDepth(3)
	if err := client.Submit(context.Background(), "Hello"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if len(strategy.runs) != 1 {
		t.Fatalf("expected one run request, got %d", len(strategy.runs))
	}
	req := strategy.runs[0]
	if req.SessionID != client.Session.ID() {
		t.Errorf("unexpected session id %q", req.SessionID)
	}
	if !req.DeepSearch || req.Depth != 3 {
		t.Errorf("options not carried: deepsearch=%v depth=%d", req.DeepSearch, req.Depth)
	}
	if len(req.History) != 1 || req.History[0].Role != protocol.RoleUser || req.History[0].Content != "Hello" {
		t.Errorf("unexpected history: %+v", req.History)
	}
}

func TestSubmitBlockedWhileAwaiting(t *testing.T) {
	t.Parallel()
	client, strategy := newTestClient(t, ModePush)

	if err := client.Submit(context.Background(), "first"); err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	entriesBefore := len(client.Session.Entries())

	if err := client.Submit(context.Background(), "second"); err != ErrBlocked {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if got := len(client.Session.Entries()); got != entriesBefore {
		t.Errorf("blocked submit touched the transcript: %d -> %d entries", entriesBefore, got)
	}
	if strategy.runCount() != 1 {
		t.Errorf("blocked submit reached the wire: %d runs", strategy.runCount())
	}
}

func TestSubmitEmptyMessage(t *testing.T) {
	t.Parallel()
	client, strategy := newTestClient(t, ModePush)

	if err := client.Submit(context.Background(), "   "); err != ErrEmptyMessage {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if len(client.Session.Entries()) != 0 || strategy.runCount() != 0 {
		t.Error("empty submit had side effects")
	}
}

func TestScenarioReasoningThenFinalAnswer(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, ModePush)
	sessionID := client.Session.ID()

	if err := client.Submit(context.Background(), "Hello"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	client.Reconciler.OnReasoningUpdate(protocol.ReasoningUpdate{Message: "Searching..."})
	client.Reconciler.OnReasoningUpdate(protocol.ReasoningUpdate{Message: "Summarizing..."})

	reasoning := client.Session.Reasoning()
	if len(reasoning) != 3 { // seed line plus two updates, in arrival order
		t.Fatalf("expected 3 reasoning lines, got %v", reasoning)
	}
	if reasoning[1] != "Searching..." || reasoning[2] != "Summarizing..." {
		t.Errorf("reasoning lines out of order: %v", reasoning)
	}

	client.Reconciler.OnAgentResponse(protocol.AgentResponse{SessionID: sessionID, Assistant: "Hi there"})

	entries := client.Session.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(entries))
	}
	if entries[0].Role != protocol.RoleUser || entries[0].Text != "Hello" {
		t.Errorf("unexpected user entry: %+v", entries[0])
	}
	if entries[1].Role != protocol.RoleAssistant || entries[1].Text != "Hi there" {
		t.Errorf("unexpected assistant entry: %+v", entries[1])
	}
	if len(client.Session.Reasoning()) != 0 {
		t.Error("reasoning stream not discarded after final answer")
	}
	if client.Session.TurnState() != TurnIdle {
		t.Errorf("expected idle turn, got %v", client.Session.TurnState())
	}
}

func TestFollowUpReroutesNextSubmission(t *testing.T) {
	t.Parallel()
	client, strategy := newTestClient(t, ModePush)
	sessionID := client.Session.ID()

	if err := client.Submit(context.Background(), "What happened?"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	client.Reconciler.OnReasoningUpdate(protocol.ReasoningUpdate{Message: "Checking..."})
	client.Reconciler.OnFollowUpRequest(protocol.FollowUpRequest{SessionID: sessionID, Message: "Which year?"})

	if !client.Session.PendingFollowUp() {
		t.Fatal("expected pending follow-up after follow_up_request")
	}
	if len(client.Session.Reasoning()) != 0 {
		t.Error("reasoning stream should be discarded by the follow-up question")
	}

	if err := client.Submit(context.Background(), "2023"); err != nil {
		t.Fatalf("follow-up Submit failed: %v", err)
	}
	if len(strategy.followUps) != 1 {
		t.Fatalf("expected one follow-up answer, got %d", len(strategy.followUps))
	}
	if got := strategy.followUps[0]; got.SessionID != sessionID || got.Message != "2023" {
		t.Errorf("unexpected follow-up shape: %+v", got)
	}
	if strategy.runCount() != 1 {
		t.Errorf("follow-up answer should not produce a run request, got %d runs", strategy.runCount())
	}
	if client.Session.PendingFollowUp() {
		t.Error("pending follow-up flag not cleared after routing")
	}
}

func TestErrorEventIsTerminalForTurnOnly(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, ModePush)
	sessionID := client.Session.ID()

	if err := client.Submit(context.Background(), "Hello"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	client.Reconciler.OnError(protocol.ErrorEvent{SessionID: sessionID, Error: "agent exploded"})

	entries := client.Session.Entries()
	last := entries[len(entries)-1]
	if last.Role != protocol.RoleAssistant || last.Text != "Error: agent exploded" {
		t.Errorf("unexpected error entry: %+v", last)
	}
	if err := client.Submit(context.Background(), "again"); err != nil {
		t.Errorf("expected session to recover for the next turn, got %v", err)
	}
}

func TestEventsForOtherSessionsIgnored(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, ModePush)

	if err := client.Submit(context.Background(), "Hello"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	before := len(client.Session.Entries())

	client.Reconciler.OnAgentResponse(protocol.AgentResponse{SessionID: "session_000000000000", Assistant: "not yours"})
	client.Reconciler.OnError(protocol.ErrorEvent{SessionID: "session_000000000000", Error: "not yours"})
	client.Reconciler.OnFollowUpRequest(protocol.FollowUpRequest{SessionID: "session_000000000000", Message: "not yours"})

	if got := len(client.Session.Entries()); got != before {
		t.Errorf("foreign events changed the transcript: %d -> %d", before, got)
	}
	if client.Session.TurnState() != TurnAwaitingResponse {
		t.Error("foreign events changed turn state")
	}
}

func TestReasoningIgnoredWhileIdle(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, ModePush)

	client.Reconciler.OnReasoningUpdate(protocol.ReasoningUpdate{Message: "stray"})
	if got := client.Session.Reasoning(); len(got) != 0 {
		t.Errorf("expected stray reasoning to be ignored, got %v", got)
	}
}

func TestRequestModePlaceholderReplacedInPlace(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, ModeRequest)
	sessionID := client.Session.ID()

	if err := client.Submit(context.Background(), "Hello"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	entries := client.Session.Entries()
	if len(entries) != 2 || entries[1].Text != ThinkingPlaceholder {
		t.Fatalf("expected thinking placeholder, got %+v", entries)
	}
	if err := client.Submit(context.Background(), "too soon"); err != ErrBlocked {
		t.Fatalf("expected ErrBlocked while exchange outstanding, got %v", err)
	}

	client.Reconciler.OnAgentResponse(protocol.AgentResponse{SessionID: sessionID, Assistant: "Done"})
	entries = client.Session.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected placeholder replaced in place, got %d entries", len(entries))
	}
	if entries[1].Text != "Done" {
		t.Errorf("placeholder not replaced: %+v", entries[1])
	}
	if err := client.Submit(context.Background(), "next"); err != nil {
		t.Errorf("expected gate to clear after reply, got %v", err)
	}
}

func TestEmptyAssistantContentRendersFallback(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, ModePush)
	sessionID := client.Session.ID()

	if err := client.Submit(context.Background(), "Hello"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	client.Reconciler.OnAgentResponse(protocol.AgentResponse{SessionID: sessionID})

	entries := client.Session.Entries()
	last := entries[len(entries)-1]
	if last.Text != render.FallbackMessage {
		t.Errorf("expected fallback for empty content, got %q", last.Text)
	}
	// The non-empty terminal entry keeps the gate functional.
	if err := client.Submit(context.Background(), "next"); err != nil {
		t.Errorf("expected gate to clear, got %v", err)
	}
}

func TestEvaluationRequestShowsPromptOnce(t *testing.T) {
	t.Parallel()
	client, strategy := newTestClient(t, ModePush)
	sessionID := client.Session.ID()

	client.Reconciler.OnRequestEvaluation(protocol.EvaluationRequest{SessionID: sessionID, Assistant: "Rate this answer"})
	first := client.Ratings.Current()
	if first == nil {
		t.Fatal("expected a visible rating prompt")
	}
	client.Reconciler.OnRequestEvaluation(protocol.EvaluationRequest{SessionID: sessionID})
	if client.Ratings.Current() != first {
		t.Error("second evaluation request should be a no-op")
	}

	if err := first.Select(3); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(strategy.ratings) != 1 {
		t.Fatalf("expected exactly one rating submission, got %d", len(strategy.ratings))
	}
	if got := strategy.ratings[0]; got.SessionID != sessionID || got.Rating != 3 {
		t.Errorf("unexpected rating submission: %+v", got)
	}
}

func TestDispatchFailureRendersErrorAndRecovers(t *testing.T) {
	t.Parallel()
	client, strategy := newTestClient(t, ModePush)
	strategy.err = context.DeadlineExceeded

	if err := client.Submit(context.Background(), "Hello"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	entries := client.Session.Entries()
	last := entries[len(entries)-1]
	if last.Role != protocol.RoleAssistant || last.Text == "" {
		t.Fatalf("expected rendered error entry, got %+v", last)
	}
	if client.Session.TurnState() != TurnIdle {
		t.Error("expected idle turn after dispatch failure")
	}

	strategy.mu.Lock()
	strategy.err = nil
	strategy.mu.Unlock()
	if err := client.Submit(context.Background(), "retry"); err != nil {
		t.Errorf("expected recovery for the next turn, got %v", err)
	}
}

func TestPendingFollowUpSurvivesReasoningUpdates(t *testing.T) {
	t.Parallel()
	client, strategy := newTestClient(t, ModePush)
	sessionID := client.Session.ID()

	if err := client.Submit(context.Background(), "Question"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	client.Reconciler.OnReasoningUpdate(protocol.ReasoningUpdate{Message: "one"})
	client.Reconciler.OnReasoningUpdate(protocol.ReasoningUpdate{Message: "two"})
	client.Reconciler.OnFollowUpRequest(protocol.FollowUpRequest{SessionID: sessionID, Message: "Clarify?"})

	if err := client.Submit(context.Background(), "clarified"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(strategy.followUps) != 1 {
		t.Errorf("expected follow-up shape despite intervening reasoning, got %d follow-ups and %d runs",
			len(strategy.followUps), strategy.runCount())
	}
}
