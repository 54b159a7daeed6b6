package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/marketlens/marketlens/internal/agent"
	"github.com/marketlens/marketlens/internal/ingest"
	"github.com/marketlens/marketlens/internal/knowledge"
	"github.com/marketlens/marketlens/internal/log"
	"github.com/marketlens/marketlens/internal/market"
	"github.com/marketlens/marketlens/internal/session"
)

// AgentRunner runs one chat turn. *agent.Engine satisfies it.
type AgentRunner interface {
	Run(ctx context.Context, turn agent.Turn) <-chan agent.Event
}

// Ingestor processes article batches. *ingest.Pipeline satisfies it.
type Ingestor interface {
	Ingest(ctx context.Context, ticker string, articles []market.NewsArticle) (ingest.Result, error)
}

// ChunkStore is the knowledge base surface the debug endpoint reads.
type ChunkStore interface {
	List(ctx context.Context, ticker string, limit int32) ([]knowledge.Document, error)
	Count(ctx context.Context, filter map[string]string) (int64, error)
}

// ChatHandler serves the conversational agent endpoints.
type ChatHandler struct {
	engine   AgentRunner
	sessions *session.Store
	ingestor Ingestor
	chunks   ChunkStore
	logger   log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(engine AgentRunner, sessions *session.Store, ingestor Ingestor, chunks ChunkStore, logger log.Logger) *ChatHandler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &ChatHandler{
		engine:   engine,
		sessions: sessions,
		ingestor: ingestor,
		chunks:   chunks,
		logger:   logger,
	}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat/message", h.message)
	mux.HandleFunc("POST /api/chat/scrape-articles", h.scrapeArticles)
	mux.HandleFunc("GET /api/chat/conversations/{id}", h.getConversation)
	mux.HandleFunc("DELETE /api/chat/clear/{id}", h.clearConversation)
	mux.HandleFunc("GET /api/chat/health", h.health)
	mux.HandleFunc("GET /api/chat/debug/chunks", h.debugChunks)
}

type chatRequest struct {
	Ticker         string         `json:"ticker"`
	Message        string         `json:"message"`
	Context        map[string]any `json:"context"`
	ConversationID string         `json:"conversation_id"`
}

// message streams a chat turn as Server-Sent Events. Event names mirror the
// agent's event types; text chunks are sent as plain text, everything else as
// JSON.
func (h *ChatHandler) message(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Ticker == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = "default"
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	events := h.engine.Run(r.Context(), agent.Turn{
		ConversationID: req.ConversationID,
		Ticker:         req.Ticker,
		Message:        req.Message,
		Context:        req.Context,
	})

	for ev := range events {
		var werr error
		switch ev.Type {
		case agent.EventText:
			werr = sse.writeText(string(agent.EventText), ev.Text)
		case agent.EventToolCall:
			payload := map[string]any{"tool": ev.Tool, "status": ev.Status}
			if ev.Status == agent.StatusCalling {
				payload["args"] = ev.Args
			}
			if ev.Error != "" {
				payload["error"] = ev.Error
			}
			werr = sse.writeJSON(string(agent.EventToolCall), payload)
		case agent.EventDone:
			werr = sse.writeJSON(string(agent.EventDone), map[string]any{})
		case agent.EventError:
			werr = sse.writeJSON(string(agent.EventError), map[string]any{"message": ev.Error})
		}
		if werr != nil {
			// Client went away; the engine notices via the request context.
			h.logger.Debug("sse write failed", "error", werr)
			return
		}
	}
}

type scrapeRequest struct {
	Ticker   string               `json:"ticker"`
	Articles []market.NewsArticle `json:"articles"`
}

func (h *ChatHandler) scrapeArticles(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Ticker == "" {
		writeError(w, http.StatusBadRequest, "Missing ticker")
		return
	}
	if len(req.Articles) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"scraped": 0, "embedded": 0, "failed": 0, "skipped": 0,
			"message": "No articles provided",
		})
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), req.Ticker, req.Articles)
	if err != nil {
		h.logger.Error("article ingestion failed", "ticker", req.Ticker, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ChatHandler) getConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	messages := h.sessions.History(id, 0)
	if messages == nil {
		messages = []session.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *ChatHandler) clearConversation(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *ChatHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"components": map[string]string{
			"agent":        "ok",
			"embeddings":   "ok",
			"vector_store": "ok",
			"llm":          "ok",
		},
	})
}

// debugChunks exposes the stored knowledge base documents for inspection.
func (h *ChatHandler) debugChunks(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	docs, err := h.chunks.List(r.Context(), ticker, int32(limit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := h.chunks.Count(r.Context(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	chunks := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		chunks = append(chunks, map[string]any{
			"id":              doc.ID,
			"ticker":          doc.Metadata[knowledge.MetaTicker],
			"type":            doc.Metadata[knowledge.MetaType],
			"title":           doc.Metadata[knowledge.MetaTitle],
			"url":             doc.Metadata[knowledge.MetaURL],
			"source":          doc.Metadata[knowledge.MetaSource],
			"published_date":  doc.Metadata[knowledge.MetaPublishedDate],
			"content_preview": doc.Metadata[knowledge.MetaContentPreview],
			"full_content":    doc.Metadata[knowledge.MetaFullContent],
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":    total,
		"returned": len(chunks),
		"chunks":   chunks,
	})
}
