package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// GroqOracle calls a Groq (OpenAI-compatible) chat completion endpoint.
// Identical requests within the cache TTL are answered from memory, so a
// batch with duplicate tickets costs one completion.
type GroqOracle struct {
	client      *openai.Client
	textModel   string
	visionModel string

	mu    sync.Mutex
	cache map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	value string
	exp   time.Time
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (r *RateLimitError) Error() string {
	if r.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", r.RetryAfter)
	}
	return "rate limited"
}

const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

func NewGroqOracle(apiKey, baseURL, textModel, visionModel string) *GroqOracle {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}
	cfg.BaseURL = baseURL
	return &GroqOracle{
		client:      openai.NewClientWithConfig(cfg),
		textModel:   textModel,
		visionModel: visionModel,
		cache:       map[string]cacheEntry{},
		ttl:         60 * time.Second,
	}
}

func (o *GroqOracle) Complete(ctx context.Context, req Request) (string, error) {
	key := requestKey(req)
	if v, ok := o.cacheGet(key); ok {
		return v, nil
	}

	chatReq := openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
		},
	}

	if req.ImageB64 != "" {
		chatReq.Model = o.visionModel
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: req.Text},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: fmt.Sprintf("data:%s;base64,%s", req.ImageMIME, req.ImageB64),
					},
				},
			},
		})
	} else {
		chatReq.Model = o.textModel
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Text,
		})
		if req.ForceJSON {
			chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
			return "", &RateLimitError{}
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty oracle response")
	}

	answer := resp.Choices[0].Message.Content
	o.cacheSet(key, answer)
	return answer, nil
}

func requestKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.Text))
	h.Write([]byte{0})
	h.Write([]byte(req.ImageMIME))
	h.Write([]byte{0})
	h.Write([]byte(req.ImageB64))
	return hex.EncodeToString(h.Sum(nil))
}

func (o *GroqOracle) cacheGet(key string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.cache[key]; ok {
		if time.Now().Before(e.exp) {
			return e.value, true
		}
		delete(o.cache, key)
	}
	return "", false
}

func (o *GroqOracle) cacheSet(key, value string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache[key] = cacheEntry{value: value, exp: time.Now().Add(o.ttl)}
}
