package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// OllamaProvider targets a local Ollama daemon. Useful for development when
// no hosted deployment is configured.
type OllamaProvider struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatReq struct {
	Model    string        `json:"model"`
	Messages []ollamaMsg   `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaChatResp struct {
	Message         ollamaMsg `json:"message"`
	Done            bool      `json:"done"`
	DoneReason      string    `json:"done_reason,omitempty"`
	PromptEvalCount int       `json:"prompt_eval_count,omitempty"`
	EvalCount       int       `json:"eval_count,omitempty"`
	Error           string    `json:"error,omitempty"`
}

func NewOllamaProvider(baseURL string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OllamaProvider{
		BaseURL: baseURL,
		Timeout: timeout,
		Client:  &http.Client{},
	}
}

func (p *OllamaProvider) buildRequest(ctx context.Context, messages []Message, params GenerationParams, stream bool) (*http.Request, error) {
	if params.Model == "" {
		return nil, errors.New("ollama: model is required")
	}

	reqBody := ollamaChatReq{
		Model:  params.Model,
		Stream: stream,
		Options: ollamaOptions{
			Temperature: params.Temperature,
			TopP:        params.TopP,
			NumPredict:  params.MaxTokens,
			Stop:        params.Stop,
		},
		Messages: func() []ollamaMsg {
			out := make([]ollamaMsg, 0, len(messages))
			for _, m := range messages {
				out = append(out, ollamaMsg{Role: m.Role, Content: m.Content})
			}
			return out
		}(),
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/chat", p.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func ollamaUsage(r ollamaChatResp) *Usage {
	if r.PromptEvalCount == 0 && r.EvalCount == 0 {
		return nil
	}
	return &Usage{
		PromptTokens:     r.PromptEvalCount,
		CompletionTokens: r.EvalCount,
		TotalTokens:      r.PromptEvalCount + r.EvalCount,
	}
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message, params GenerationParams) (*Result, error) {
	if p.Client == nil {
		return nil, errors.New("ollama: http client is nil")
	}

	cctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := p.buildRequest(cctx, messages, params, false)
	if err != nil {
		return nil, err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrProviderTimeout
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	var decoded ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded.Error != "" {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: decoded.Error}
	}

	return &Result{
		Role:         "assistant",
		Content:      decoded.Message.Content,
		FinishReason: decoded.DoneReason,
		Usage:        ollamaUsage(decoded),
	}, nil
}

// StreamChat streams assistant fragments from Ollama's NDJSON reply. The
// done record carries the finish reason and eval counts.
func (p *OllamaProvider) StreamChat(ctx context.Context, messages []Message, params GenerationParams) (<-chan Fragment, <-chan error) {
	fragments := make(chan Fragment, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(fragments)
		defer close(errs)

		if p.Client == nil {
			errs <- errors.New("ollama: http client is nil")
			return
		}

		req, err := p.buildRequest(ctx, messages, params, true)
		if err != nil {
			errs <- err
			return
		}

		resp, err := p.Client.Do(req)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			errs <- statusError(resp)
			return
		}

		sc := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}

			var decoded ollamaChatResp
			if err := json.Unmarshal(line, &decoded); err != nil {
				errs <- err
				return
			}
			if decoded.Error != "" {
				errs <- &ProviderError{StatusCode: resp.StatusCode, Message: decoded.Error}
				return
			}

			if decoded.Done {
				reason := decoded.DoneReason
				if reason == "" {
					reason = "stop"
				}
				select {
				case fragments <- Fragment{
					Content:      decoded.Message.Content,
					FinishReason: reason,
					Usage:        ollamaUsage(decoded),
				}:
				case <-ctx.Done():
				}
				return
			}

			if decoded.Message.Content != "" {
				select {
				case fragments <- Fragment{Content: decoded.Message.Content}:
				case <-ctx.Done():
					return
				}
			}
		}

		if err := sc.Err(); err != nil {
			errs <- err
			return
		}
	}()

	return fragments, errs
}
