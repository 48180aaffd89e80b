package ai

import (
	"encoding/json"
	"io"
	"net/http"
)

// HistoryMetadata ties a streamed reply back to its stored conversation so
// the client can issue the follow-up update call.
type HistoryMetadata struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Title          string `json:"title,omitempty"`
	Date           string `json:"date,omitempty"`
}

type Choice struct {
	Messages     []Message `json:"messages"`
	FinishReason string    `json:"finish_reason,omitempty"`
}

// ChatResponse is the wire record the client reads, one per line in
// streaming mode or alone in single-shot mode.
type ChatResponse struct {
	ID              string           `json:"id"`
	Model           string           `json:"model"`
	Created         int64            `json:"created"`
	Object          string           `json:"object"`
	Choices         []Choice         `json:"choices"`
	Usage           *Usage           `json:"usage,omitempty"`
	HistoryMetadata *HistoryMetadata `json:"history_metadata,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// FrameFragment shapes one fragment into its wire record.
func FrameFragment(id, model string, created int64, meta *HistoryMetadata, f Fragment) ChatResponse {
	return ChatResponse{
		ID:      id,
		Model:   model,
		Created: created,
		Object:  "chat.completion.chunk",
		Choices: []Choice{{
			Messages:     []Message{{Role: "assistant", Content: f.Content}},
			FinishReason: f.FinishReason,
		}},
		Usage:           f.Usage,
		HistoryMetadata: meta,
	}
}

// FrameResult shapes a single-shot completion into its wire record.
func FrameResult(id, model string, created int64, meta *HistoryMetadata, r *Result) ChatResponse {
	return ChatResponse{
		ID:      id,
		Model:   model,
		Created: created,
		Object:  "chat.completion",
		Choices: []Choice{{
			Messages:     []Message{{Role: r.Role, Content: r.Content}},
			FinishReason: r.FinishReason,
		}},
		Usage:           r.Usage,
		HistoryMetadata: meta,
	}
}

// WriteNDJSON drains the fragment sequence into w, one JSON record per
// fragment, newline-delimited. It knows nothing about the provider transport;
// it is a pure function of the fragment sequence. A provider error terminates
// the stream with a final {"error": ...} record and is returned to the caller.
func WriteNDJSON(w io.Writer, id, model string, created int64, meta *HistoryMetadata, fragments <-chan Fragment, errs <-chan error) error {
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)

	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	for f := range fragments {
		if err := enc.Encode(FrameFragment(id, model, created, meta, f)); err != nil {
			return err
		}
		flush()
	}

	if err := <-errs; err != nil {
		_ = enc.Encode(ChatResponse{ID: id, Model: model, Created: created, Object: "chat.completion.chunk", Error: err.Error()})
		flush()
		return err
	}
	return nil
}
