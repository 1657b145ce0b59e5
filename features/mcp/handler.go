// Package mcp exposes fund search and records as Model Context Protocol tools
// over JSON-RPC, either as a single POST or an SSE session.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akbarharyadi/coding-test-3rd/features/document"
	"github.com/akbarharyadi/coding-test-3rd/features/fund"
	"github.com/akbarharyadi/coding-test-3rd/internal/middleware"
	"github.com/akbarharyadi/coding-test-3rd/internal/retrieval"
	"github.com/akbarharyadi/coding-test-3rd/internal/tables"
)

type Searcher interface {
	Search(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Result, error)
}

type FundReader interface {
	List(ctx context.Context) ([]fund.Fund, error)
	Transactions(ctx context.Context, id int64) (tables.Records, error)
}

type DocumentLister interface {
	List(ctx context.Context, fundID *int64) ([]document.Document, error)
}

type Handler struct {
	searcher     Searcher
	funds        FundReader
	documents    DocumentLister
	tools        map[string]toolFunc
	sessions     map[string]chan string
	sessionsLock sync.RWMutex
}

type toolFunc func(ctx context.Context, args json.RawMessage) (string, error)

func NewHandler(s Searcher, f FundReader, d DocumentLister) *Handler {
	h := &Handler{
		searcher:  s,
		funds:     f,
		documents: d,
		sessions:  make(map[string]chan string),
	}
	h.tools = map[string]toolFunc{
		"fund_search":       h.callSearch,
		"fund_list":         h.callListFunds,
		"fund_transactions": h.callTransactions,
		"fund_documents":    h.callDocuments,
	}
	return h
}

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

// invalidParams marks tool errors caused by the caller's arguments.
type invalidParams string

func (e invalidParams) Error() string { return string(e) }

var toolList = []Tool{
	{
		Name: "fund_search",
		Description: `Semantic search over uploaded fund reports. Returns the most relevant text chunks with their fund, document and page.

[k] results to return, 1-50, default 5.
[fund_id] restrict to one fund.
[backend] "exact", "approximate" or "hybrid"; omit to use the server default.`,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":       map[string]string{"type": "string", "description": "Natural-language question"},
				"k":           map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 50},
				"fund_id":     map[string]string{"type": "integer", "description": "Fund to search within"},
				"document_id": map[string]string{"type": "integer", "description": "Document to search within"},
				"backend":     map[string]string{"type": "string"},
			},
			"required": []string{"query"},
		},
	},
	{
		Name:        "fund_list",
		Description: "Lists every fund with its GP and vintage year. Use it first to discover fund ids.",
		InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
	},
	{
		Name:        "fund_transactions",
		Description: "Returns the capital calls, distributions and adjustments extracted for one fund, ordered by date.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"fund_id": map[string]string{"type": "integer"}},
			"required":   []string{"fund_id"},
		},
	},
	{
		Name:        "fund_documents",
		Description: "Lists uploaded documents and their processing status, optionally for one fund.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"fund_id": map[string]string{"type": "integer"}},
		},
	},
}

// processRequest returns nil for notifications.
func (h *Handler) processRequest(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
				"serverInfo":      map[string]interface{}{"name": "fund-reports-mcp", "version": "1.0.0"},
			},
		}
	case "notifications/initialized":
		return nil
	case "tools/list":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ListToolsResult{Tools: toolList}}
	case "tools/call":
		return h.callTool(ctx, req)
	}

	slog.WarnContext(ctx, "unknown jsonrpc method", "method", req.Method)
	resp := makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found")
	return &resp
}

func (h *Handler) callTool(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	var params CallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		slog.WarnContext(ctx, "invalid params structure", "error", err)
		resp := makeErrorResponse(req.ID, ErrInvalidParams, "Invalid params")
		return &resp
	}

	tool, ok := h.tools[params.Name]
	if !ok {
		slog.WarnContext(ctx, "tool not found", "tool", params.Name)
		resp := makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found: "+params.Name)
		return &resp
	}

	text, err := tool(ctx, params.Arguments)
	if err != nil {
		if ip, ok := err.(invalidParams); ok {
			resp := makeErrorResponse(req.ID, ErrInvalidParams, string(ip))
			return &resp
		}
		slog.ErrorContext(ctx, "tool execution failed", "tool", params.Name, "error", err)
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  ToolResult{Content: []ToolContent{{Type: "text", Text: "Error: " + err.Error()}}, IsError: true},
		}
	}

	slog.InfoContext(ctx, "tool execution completed", "tool", params.Name)
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  ToolResult{Content: []ToolContent{{Type: "text", Text: text}}},
	}
}

func (h *Handler) callSearch(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Query      string `json:"query"`
		K          int    `json:"k"`
		FundID     *int64 `json:"fund_id"`
		DocumentID *int64 `json:"document_id"`
		Backend    string `json:"backend"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", invalidParams("Invalid search arguments")
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", invalidParams("Query is required")
	}
	if args.K == 0 {
		args.K = 5
	}
	if args.K < 1 || args.K > 50 {
		return "", invalidParams("k must be between 1 and 50")
	}
	backend, err := retrieval.ParseBackend(args.Backend)
	if err != nil {
		return "", invalidParams(err.Error())
	}

	results, err := h.searcher.Search(ctx, args.Query, retrieval.Options{
		K:              args.K,
		FundID:         args.FundID,
		DocumentID:     args.DocumentID,
		Backend:        backend,
		IncludeContent: true,
	})
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	for i, res := range results {
		fmt.Fprintf(&b, "Result %d (Score: %.2f, via %s):\n", i+1, res.Score, res.Source)
		if res.FundName != "" {
			fmt.Fprintf(&b, "Fund: %s (id %d)\n", res.FundName, res.FundID)
		}
		if res.DocumentTitle != "" {
			fmt.Fprintf(&b, "Document: %s (id %d)\n", res.DocumentTitle, res.DocumentID)
		}
		if res.Metadata.PageNumber > 0 {
			fmt.Fprintf(&b, "Page: %d\n", res.Metadata.PageNumber)
		}
		fmt.Fprintf(&b, "Content:\n%s\n\n---\n", res.Content)
	}
	b.WriteString("\nUse fund_transactions(fund_id=...) for the extracted cash flows of a fund.\n")
	return b.String(), nil
}

func (h *Handler) callListFunds(ctx context.Context, _ json.RawMessage) (string, error) {
	funds, err := h.funds.List(ctx)
	if err != nil {
		return "", err
	}
	if len(funds) == 0 {
		return "No funds found.", nil
	}
	return marshalText(funds)
}

func (h *Handler) callTransactions(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		FundID int64 `json:"fund_id"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || args.FundID <= 0 {
		return "", invalidParams("fund_id is required")
	}
	records, err := h.funds.Transactions(ctx, args.FundID)
	if err != nil {
		return "", err
	}
	return marshalText(records)
}

func (h *Handler) callDocuments(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		FundID *int64 `json:"fund_id"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", invalidParams("Invalid arguments")
		}
	}
	docs, err := h.documents.List(ctx, args.FundID)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "No documents found.", nil
	}
	return marshalText(docs)
}

func marshalText(v interface{}) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(b), nil
}

func makeErrorResponse(id interface{}, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeRPCError(w, nil, ErrParse, "Parse error")
		return
	}

	resp := h.processRequest(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// HandleSSE opens a session and streams JSON-RPC responses posted to HandleMessage.
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sessionID := uuid.New().String()
	msgChan := make(chan string, 100)

	h.sessionsLock.Lock()
	h.sessions[sessionID] = msgChan
	h.sessionsLock.Unlock()

	defer func() {
		h.sessionsLock.Lock()
		delete(h.sessions, sessionID)
		h.sessionsLock.Unlock()
		close(msgChan)
		slog.Info("sse session ended", "session_id", sessionID)
	}()

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s/mcp/messages?sessionId=%s", scheme, r.Host, sessionID)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", html.EscapeString(endpoint))
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgChan:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// HandleMessage accepts a JSON-RPC request for an open session and answers on its stream.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Missing sessionId", http.StatusBadRequest)
		return
	}

	h.sessionsLock.RLock()
	msgChan, exists := h.sessions[sessionID]
	h.sessionsLock.RUnlock()
	if !exists {
		h.writeError(ctx, w, "NOT_FOUND", "Session not found", http.StatusNotFound)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_JSON", "Invalid JSON", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)

	bgCtx := context.WithoutCancel(ctx)
	go func() {
		resp := h.processRequest(bgCtx, req)
		if resp == nil {
			return
		}
		respBytes, err := json.Marshal(resp)
		if err != nil {
			slog.ErrorContext(bgCtx, "failed to marshal response", "error", err)
			return
		}

		// The read lock keeps the session from closing its channel mid-send.
		h.sessionsLock.RLock()
		defer h.sessionsLock.RUnlock()
		if _, open := h.sessions[sessionID]; !open {
			return
		}
		select {
		case msgChan <- string(respBytes):
		default:
			slog.WarnContext(bgCtx, "session channel full, dropping message", "session_id", sessionID)
		}
	}()
}

func (h *Handler) writeRPCError(w http.ResponseWriter, id interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(makeErrorResponse(id, code, message)); err != nil {
		slog.Error("failed to encode rpc error", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
