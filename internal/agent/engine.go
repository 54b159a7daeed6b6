// Package agent runs the tool-calling loop that answers chat turns: the model
// reasons, requests tool calls, observes their results, and eventually emits
// a final text answer. Progress streams out as events.
package agent

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/log"
	"github.com/marketlens/marketlens/internal/session"
	"github.com/marketlens/marketlens/internal/tools"
)

const (
	// DefaultMaxIterations bounds the reasoning loop per turn.
	DefaultMaxIterations = 8

	// textChunkSize is how many characters each streamed text event carries.
	textChunkSize = 20

	apologyFallback = "I wasn't able to generate a response. Please try again."
	budgetFallback  = "I gathered some information but reached the maximum number of analysis steps. Please try a more specific question."
)

// Generator is the model surface the engine needs. *llm.GeminiClient
// satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ToolRunner executes one tool call. *tools.Executor satisfies it.
type ToolRunner interface {
	Execute(ctx context.Context, name string, args map[string]any, snap *tools.Snapshot) map[string]any
}

// SessionStore persists completed exchanges. *session.Store satisfies it.
type SessionStore interface {
	History(id string, lastN int) []session.Message
	AppendExchange(id, userContent, assistantContent string)
}

// Turn is one user request.
type Turn struct {
	ConversationID string

	// Ticker the user is viewing. Parameterizes the system instruction and
	// scopes the frontend snapshot.
	Ticker string

	Message string

	// Context is the frontend's market data snapshot, if it sent one.
	Context map[string]any
}

// Engine orchestrates turns. Safe for concurrent use; per-turn state lives on
// the goroutine Run spawns.
type Engine struct {
	generator Generator
	runner    ToolRunner
	sessions  SessionStore
	limiter   *rate.Limiter
	logger    log.Logger

	maxIterations         int
	historyDepth          int
	persistBudgetFallback bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxIterations bounds the reasoning loop.
func WithMaxIterations(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithHistoryDepth sets how many prior exchange pairs each turn sees.
func WithHistoryDepth(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.historyDepth = n
		}
	}
}

// WithRateLimiter throttles model round trips across all turns.
func WithRateLimiter(l *rate.Limiter) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.limiter = l
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger log.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPersistBudgetFallback also saves the iteration-budget fallback reply to
// the session, so follow-up turns see that the question went unanswered.
func WithPersistBudgetFallback(persist bool) EngineOption {
	return func(e *Engine) { e.persistBudgetFallback = persist }
}

// NewEngine creates an Engine.
func NewEngine(g Generator, runner ToolRunner, sessions SessionStore, opts ...EngineOption) *Engine {
	e := &Engine{
		generator:     g,
		runner:        runner,
		sessions:      sessions,
		limiter:       rate.NewLimiter(rate.Limit(2), 4),
		logger:        log.NewNop(),
		maxIterations: DefaultMaxIterations,
		historyDepth:  session.DefaultHistoryDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run processes one turn. Events arrive on the returned channel, which closes
// when the turn finishes or ctx is canceled. The terminal event is either
// done or error.
func (e *Engine) Run(ctx context.Context, turn Turn) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("agent panic", "conversation_id", turn.ConversationID, "panic", r)
				e.emit(ctx, events, Event{Type: EventError, Error: fmt.Sprintf("An error occurred: %v", r)})
			}
		}()
		e.run(ctx, turn, events)
	}()
	return events
}

func (e *Engine) run(ctx context.Context, turn Turn, events chan<- Event) {
	snap := tools.NewSnapshot(turn.Ticker, turn.Context)

	history := e.sessions.History(turn.ConversationID, e.historyDepth)
	contents := llm.HistoryContents(history)
	contents = append(contents, llm.UserContent(turn.Message))

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(llm.AgentSystemPrompt(turn.Ticker), genai.RoleUser),
		Tools: []*genai.Tool{
			{FunctionDeclarations: tools.Declarations()},
		},
	}

	for iteration := 1; iteration <= e.maxIterations; iteration++ {
		e.logger.Info("agent iteration",
			"conversation_id", turn.ConversationID,
			"iteration", iteration,
			"max", e.maxIterations)

		if err := e.limiter.Wait(ctx); err != nil {
			e.emit(ctx, events, Event{Type: EventError, Error: fmt.Sprintf("An error occurred: %v", err)})
			return
		}

		resp, err := e.generator.GenerateContent(ctx, contents, config)
		if err != nil {
			e.logger.Error("model call failed", "conversation_id", turn.ConversationID, "error", err)
			e.emit(ctx, events, Event{Type: EventError, Error: fmt.Sprintf("An error occurred: %v", err)})
			return
		}

		modelContent, functionCalls, text := extractParts(resp)

		if len(functionCalls) == 0 {
			e.finishWithText(ctx, turn, text, events)
			return
		}

		// The model's tool-calling turn goes into the transcript verbatim,
		// followed by every function response of this iteration grouped into
		// one content. The API rejects responses split across contents.
		contents = append(contents, modelContent)

		responseParts := make([]*genai.Part, 0, len(functionCalls))
		for _, fc := range functionCalls {
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}

			if !e.emit(ctx, events, Event{Type: EventToolCall, Tool: fc.Name, Args: args, Status: StatusCalling}) {
				return
			}

			result := e.runner.Execute(ctx, fc.Name, args, snap)

			if errMsg, failed := result["error"].(string); failed {
				if !e.emit(ctx, events, Event{Type: EventToolCall, Tool: fc.Name, Status: StatusError, Error: errMsg}) {
					return
				}
			} else {
				if !e.emit(ctx, events, Event{Type: EventToolCall, Tool: fc.Name, Status: StatusComplete}) {
					return
				}
			}

			responseParts = append(responseParts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     fc.Name,
					Response: map[string]any{"result": result},
				},
			})
		}

		contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: responseParts})
	}

	// Iteration budget exhausted.
	e.logger.Warn("iteration budget exhausted", "conversation_id", turn.ConversationID)
	if !e.emit(ctx, events, Event{Type: EventText, Text: budgetFallback}) {
		return
	}
	if e.persistBudgetFallback {
		e.sessions.AppendExchange(turn.ConversationID, turn.Message, budgetFallback)
	}
	e.emit(ctx, events, Event{Type: EventDone})
}

// finishWithText streams the final answer in fixed-size chunks, persists the
// exchange, and closes the turn.
func (e *Engine) finishWithText(ctx context.Context, turn Turn, text string, events chan<- Event) {
	if text == "" {
		text = apologyFallback
	}

	for _, chunk := range chunkText(text, textChunkSize) {
		if !e.emit(ctx, events, Event{Type: EventText, Text: chunk}) {
			return
		}
	}
	if !e.emit(ctx, events, Event{Type: EventDone}) {
		return
	}

	// Only the user message and the final answer persist; intermediate tool
	// traffic stays out of history.
	e.sessions.AppendExchange(turn.ConversationID, turn.Message, text)
}

// emit sends an event unless the context is gone. Returns false when the turn
// should stop.
func (e *Engine) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// extractParts splits a model response into its content, function calls, and
// concatenated text.
func extractParts(resp *genai.GenerateContentResponse) (*genai.Content, []*genai.FunctionCall, string) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return &genai.Content{Role: genai.RoleModel}, nil, ""
	}

	content := resp.Candidates[0].Content
	var calls []*genai.FunctionCall
	var text string
	for _, part := range content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
		text += part.Text
	}
	return content, calls, text
}

// chunkText splits text into rune-safe chunks of at most size characters.
func chunkText(text string, size int) []string {
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
