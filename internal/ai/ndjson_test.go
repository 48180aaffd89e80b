package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func collectLines(t *testing.T, buf *bytes.Buffer) []ChatResponse {
	t.Helper()
	var out []ChatResponse
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec ChatResponse
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad record %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestWriteNDJSON(t *testing.T) {
	fragments := make(chan Fragment, 3)
	errs := make(chan error, 1)

	fragments <- Fragment{Content: "Hel"}
	fragments <- Fragment{Content: "lo"}
	fragments <- Fragment{Content: "!", FinishReason: "stop", Usage: &Usage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8}}
	close(fragments)
	close(errs)

	var buf bytes.Buffer
	meta := &HistoryMetadata{ConversationID: "c1", Title: "greeting"}
	if err := WriteNDJSON(&buf, "chatcmpl-1", "gpt-4", 1700000000, meta, fragments, errs); err != nil {
		t.Fatalf("write: %v", err)
	}

	records := collectLines(t, &buf)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	var content strings.Builder
	for _, rec := range records {
		if len(rec.Choices) != 1 || len(rec.Choices[0].Messages) != 1 {
			t.Fatalf("unexpected record shape: %+v", rec)
		}
		if rec.Choices[0].Messages[0].Role != "assistant" {
			t.Fatalf("unexpected role: %q", rec.Choices[0].Messages[0].Role)
		}
		if rec.HistoryMetadata == nil || rec.HistoryMetadata.ConversationID != "c1" {
			t.Fatalf("history metadata missing: %+v", rec.HistoryMetadata)
		}
		content.WriteString(rec.Choices[0].Messages[0].Content)
	}
	if content.String() != "Hello!" {
		t.Fatalf("concatenated content = %q", content.String())
	}

	last := records[len(records)-1]
	if last.Usage == nil || last.Usage.TotalTokens != 8 {
		t.Fatalf("terminal record missing usage: %+v", last.Usage)
	}
	if last.Choices[0].FinishReason != "stop" {
		t.Fatalf("terminal record missing finish reason")
	}
}

func TestWriteNDJSONProviderError(t *testing.T) {
	fragments := make(chan Fragment, 1)
	errs := make(chan error, 1)

	fragments <- Fragment{Content: "partial"}
	errs <- &ProviderError{StatusCode: 429, Message: "rate limited"}
	close(fragments)
	close(errs)

	var buf bytes.Buffer
	err := WriteNDJSON(&buf, "chatcmpl-2", "gpt-4", 1700000000, nil, fragments, errs)
	if err == nil {
		t.Fatalf("expected error")
	}
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.StatusCode != 429 {
		t.Fatalf("unexpected error: %v", err)
	}

	records := collectLines(t, &buf)
	if len(records) != 2 {
		t.Fatalf("expected partial + error records, got %d", len(records))
	}
	if records[1].Error == "" {
		t.Fatalf("final record should carry the error")
	}
}

func TestFrameResult(t *testing.T) {
	res := &Result{Role: "assistant", Content: "Hello!", FinishReason: "stop", Usage: &Usage{TotalTokens: 8}}
	rec := FrameResult("chatcmpl-3", "gpt-4", 1700000000, nil, res)

	if rec.Object != "chat.completion" {
		t.Fatalf("unexpected object: %q", rec.Object)
	}
	if rec.Choices[0].Messages[0].Content != "Hello!" {
		t.Fatalf("unexpected content")
	}
	if rec.Usage == nil || rec.Usage.TotalTokens != 8 {
		t.Fatalf("usage not carried")
	}
}
