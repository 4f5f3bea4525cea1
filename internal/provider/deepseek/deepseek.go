package deepseek

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/waiterai/menuai/internal/provider"
)

// DeepSeekProvider speaks the OpenAI-compatible chat completions protocol
// against api.deepseek.com.
type DeepSeekProvider struct {
	apiKey  string
	baseURL string
	models  provider.TaskModels
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Model   string       `json:"model"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
	Delta   chatDelta   `json:"delta"`
}

type chatDelta struct {
	Content string `json:"content"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func New(apiKey string) provider.Provider {
	return &DeepSeekProvider{
		apiKey:  apiKey,
		baseURL: "https://api.deepseek.com/v1",
		models: provider.TaskModels{
			Description: "deepseek-chat",
			Translation: "deepseek-chat",
			Chat:        "deepseek-chat",
		},
	}
}

func (p *DeepSeekProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	body, err := json.Marshal(p.mapRequest(req))
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/chat/completions", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))

	start := time.Now()
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: deepseek: %v", provider.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: deepseek api status %d: %s", provider.ErrUnavailable, resp.StatusCode, string(respBody))
	}

	var dsResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&dsResp); err != nil {
		return nil, fmt.Errorf("%w: deepseek: %v", provider.ErrMalformedResponse, err)
	}

	if len(dsResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: deepseek returned no choices", provider.ErrMalformedResponse)
	}

	return &provider.Response{
		ID:           dsResp.ID,
		Content:      dsResp.Choices[0].Message.Content,
		InputTokens:  dsResp.Usage.PromptTokens,
		OutputTokens: dsResp.Usage.CompletionTokens,
		Model:        dsResp.Model,
		Provider:     p.Name(),
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (p *DeepSeekProvider) mapRequest(req *provider.Request) chatRequest {
	messages := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = chatMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}

	return chatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
}

func (p *DeepSeekProvider) CompleteStream(ctx context.Context, req *provider.Request) (<-chan *provider.Chunk, error) {
	dsReq := p.mapRequest(req)
	dsReq.Stream = true
	body, err := json.Marshal(dsReq)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/chat/completions", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))

	ch := make(chan *provider.Chunk)

	go func() {
		defer close(ch)

		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			select {
			case ch <- &provider.Chunk{Err: fmt.Errorf("%w: deepseek: %v", provider.ErrUnavailable, err)}:
			case <-ctx.Done():
			}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			select {
			case ch <- &provider.Chunk{Err: fmt.Errorf("%w: deepseek api status %d: %s", provider.ErrUnavailable, resp.StatusCode, string(respBody))}:
			case <-ctx.Done():
			}
			return
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					select {
					case ch <- &provider.Chunk{Done: true}:
					case <-ctx.Done():
					}
					return
				}
				select {
				case ch <- &provider.Chunk{Err: fmt.Errorf("%w: deepseek: %v", provider.ErrUnavailable, err)}:
				case <-ctx.Done():
				}
				return
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				select {
				case ch <- &provider.Chunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}

			var dsResp chatResponse
			if err := json.Unmarshal([]byte(data), &dsResp); err != nil {
				select {
				case ch <- &provider.Chunk{Err: fmt.Errorf("%w: deepseek: %v", provider.ErrMalformedResponse, err)}:
				case <-ctx.Done():
				}
				return
			}

			if len(dsResp.Choices) > 0 {
				content := dsResp.Choices[0].Delta.Content
				if content != "" {
					select {
					case ch <- &provider.Chunk{Delta: content}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

func (p *DeepSeekProvider) Name() string {
	return "deepseek"
}

func (p *DeepSeekProvider) Models() provider.TaskModels {
	return p.models
}
