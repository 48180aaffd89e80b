package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/egt-labs/egt-gpt/internal/ai"
	"github.com/egt-labs/egt-gpt/internal/config"
	"github.com/egt-labs/egt-gpt/internal/store/docstore"
)

// fakeUpstream answers both relay shapes: a JSON completion for
// non-streaming calls (title synthesis) and an SSE stream otherwise.
func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode upstream request: %v", err)
		}

		if !req.Stream {
			fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Quarterly Report Summary"},"finish_reason":"stop"}]}`)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo!\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2,\"total_tokens\":7}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func newTestRouter(t *testing.T, upstreamURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := docstore.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Config{
		AuthEnabled:       false,
		DevPrincipalID:    "u-test",
		DevPrincipalName:  "devuser@localhost",
		OpenAIBaseURL:     upstreamURL,
		OpenAIAPIKey:      "test-key",
		SystemMessage:     "You are a helpful assistant.",
		StreamEnabled:     true,
		ChatTimeout:       5 * time.Second,
		GPT4Deployment:    "gpt-4",
		GPT35Deployment:   "gpt-3.5-turbo-16k",
		DefaultDeployment: "gpt-3.5-turbo-16k",
		TitleMaxTokens:    64,
		UITitle:           "Contoso",
	}

	return NewRouter(db, cfg, nil, nil, zerolog.Nop())
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeNDJSON(t *testing.T, body string) []ai.ChatResponse {
	t.Helper()
	var out []ai.ChatResponse
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		var rec ai.ChatResponse
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad stream record %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestTurnLifecycle(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	r := newTestRouter(t, upstream.URL)

	// phase one: generate
	w := doJSON(t, r, http.MethodPost, "/history/generate", gin.H{
		"messages": []gin.H{{"role": "user", "content": "summarize the quarterly report"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("generate: %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json-lines" {
		t.Fatalf("unexpected content type %q", ct)
	}

	records := decodeNDJSON(t, w.Body.String())
	var content strings.Builder
	for _, rec := range records {
		for _, ch := range rec.Choices {
			for _, m := range ch.Messages {
				content.WriteString(m.Content)
			}
		}
	}
	if content.String() != "Hello!" {
		t.Fatalf("streamed content = %q", content.String())
	}
	meta := records[0].HistoryMetadata
	if meta == nil || meta.ConversationID == "" || meta.Title != "Quarterly Report Summary" {
		t.Fatalf("history metadata missing: %+v", meta)
	}
	convID := meta.ConversationID

	// phase two: the client echoes the assistant reply
	w = doJSON(t, r, http.MethodPost, "/history/update", gin.H{
		"conversation_id": convID,
		"messages": []gin.H{
			{"role": "user", "content": "summarize the quarterly report"},
			{"id": "assistant-1", "role": "assistant", "content": "Hello!"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}

	// list and read reflect both phases
	w = doJSON(t, r, http.MethodGet, "/history/list", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	var convs []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &convs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != convID {
		t.Fatalf("unexpected list: %+v", convs)
	}

	w = doJSON(t, r, http.MethodPost, "/history/read", gin.H{"conversation_id": convID})
	if w.Code != http.StatusOK {
		t.Fatalf("read: %d %s", w.Code, w.Body.String())
	}
	var read struct {
		Messages []struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &read); err != nil {
		t.Fatalf("decode read: %v", err)
	}
	if len(read.Messages) != 2 || read.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected messages: %+v", read.Messages)
	}

	// feedback on the assistant message
	w = doJSON(t, r, http.MethodPost, "/history/message_feedback", gin.H{
		"message_id":       "assistant-1",
		"message_feedback": "positive",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("feedback: %d %s", w.Code, w.Body.String())
	}

	// rename, clear, delete
	w = doJSON(t, r, http.MethodPost, "/history/rename", gin.H{"conversation_id": convID, "title": "renamed"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodPost, "/history/clear", gin.H{"conversation_id": convID})
	if w.Code != http.StatusOK {
		t.Fatalf("clear: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodDelete, "/history/delete", gin.H{"conversation_id": convID})
	if w.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/history/read", gin.H{"conversation_id": convID})
	if w.Code != http.StatusNotFound {
		t.Fatalf("read after delete: %d", w.Code)
	}
}

func TestPromptLibrary(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	r := newTestRouter(t, upstream.URL)

	w := doJSON(t, r, http.MethodPost, "/prompt/add", gin.H{
		"prompt": "Summarize this document",
		"tags":   []string{"summary"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add: %d %s", w.Code, w.Body.String())
	}
	var created struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode add: %v", err)
	}
	if created.ID == "" || created.Title != "Summarize this document" {
		t.Fatalf("unexpected prompt: %+v", created)
	}

	w = doJSON(t, r, http.MethodPost, "/edit_prompt", gin.H{
		"promptId": created.ID,
		"prompt":   "Summarize in one paragraph",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("edit: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/prompt/get_prompts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	var list []struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Summarize in one paragraph" {
		t.Fatalf("unexpected list: %+v", list)
	}

	// editing an unknown prompt maps to 404
	w = doJSON(t, r, http.MethodPost, "/edit_prompt", gin.H{"promptId": "missing", "prompt": "x"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("edit missing: %d", w.Code)
	}

	// missing prompt text is a client error
	w = doJSON(t, r, http.MethodPost, "/prompt/add", gin.H{"tags": []string{"x"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("add without prompt: %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/delete_prompt", gin.H{"promptId": created.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodGet, "/prompt/get_prompts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list after delete: %d", w.Code)
	}
	list = nil
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("prompt survived delete: %+v", list)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	r := newTestRouter(t, upstream.URL)

	// validation failure
	w := doJSON(t, r, http.MethodPost, "/history/generate", gin.H{"messages": []gin.H{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty messages: %d", w.Code)
	}

	// unknown conversation
	w = doJSON(t, r, http.MethodPost, "/history/generate", gin.H{
		"conversation_id": "missing",
		"messages":        []gin.H{{"role": "user", "content": "hi"}},
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown conversation: %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/history/update", gin.H{
		"conversation_id": "missing",
		"messages":        []gin.H{{"role": "assistant", "content": "x"}},
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("update unknown conversation: %d", w.Code)
	}
}

func TestHistoryEnsure(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	r := newTestRouter(t, upstream.URL)

	w := doJSON(t, r, http.MethodGet, "/history/ensure", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ensure: %d %s", w.Code, w.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := docstore.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Config{
		AuthEnabled: true,
		JWTSecret:   "test-secret",
	}
	r := NewRouter(db, cfg, nil, nil, zerolog.Nop())

	w := doJSON(t, r, http.MethodGet, "/me", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", w.Code)
	}

	// public routes stay open
	w = doJSON(t, r, http.MethodGet, "/ping", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ping: %d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/frontend_settings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("frontend_settings: %d", w.Code)
	}
}
