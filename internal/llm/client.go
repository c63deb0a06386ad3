package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"
)

type Config struct {
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	ByAzure    bool   `yaml:"by_azure"`
	APIVersion string `yaml:"api_version"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// Client wraps a chat model for plain-text and JSON-shaped generation.
type Client struct {
	enabled        bool
	model          *openai.ChatModel
	modelName      string
	disabledReason string
}

func New(cfg Config) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if cfg.APIKey == "" || cfg.Model == "" {
		log.Printf("llm disabled: missing api key or model")
		return &Client{enabled: false, disabledReason: "api_key or model missing"}
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	model, err := openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		ByAzure:    cfg.ByAzure,
		APIVersion: cfg.APIVersion,
		Timeout:    timeout,
	})
	if err != nil {
		log.Printf("llm init error: %v", err)
		return &Client{enabled: false, disabledReason: "init failed"}
	}

	return &Client{enabled: true, model: model, modelName: cfg.Model}
}

// Generate runs one system+user exchange and returns the trimmed response.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	if !c.enabled || c.model == nil {
		reason := c.disabledReason
		if reason == "" {
			reason = "not configured"
		}
		return "", fmt.Errorf("llm unavailable: %s", reason)
	}

	messages := make([]*schema.Message, 0, 2)
	if system != "" {
		messages = append(messages, schema.SystemMessage(system))
	}
	messages = append(messages, schema.UserMessage(user))

	resp, err := c.model.Generate(ctx, messages)
	if err != nil {
		logLLMError(err)
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// GenerateJSON runs one exchange and decodes the response into out. Models
// occasionally wrap the JSON in prose or fences; the first balanced object is
// extracted as a fallback before giving up.
func (c *Client) GenerateJSON(ctx context.Context, system, user string, out any) error {
	text, err := c.Generate(ctx, system, user)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}
	jsonStr := extractFirstJSONObject(text)
	if jsonStr == "" {
		return fmt.Errorf("no json object found in llm response")
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("parse llm response: %w", err)
	}
	return nil
}

func extractFirstJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func logLLMError(err error) {
	apiErr := &openai.APIError{}
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if len(msg) > 300 {
			msg = msg[:300] + "..."
		}
		log.Printf("llm api error: status=%d message=%s", apiErr.HTTPStatusCode, msg)
		return
	}
	log.Printf("llm error: %v", err)
}
