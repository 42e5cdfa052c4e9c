package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/reusee/dscope"
	"github.com/vibego/vibego/logs"
	"github.com/vibego/vibego/nets"
)

// Message is one entry of a chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completer produces one assistant reply for a transcript.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type ChatClient struct {
	baseURL string
	model   string
	apiKey  string
	client  nets.HTTPClient

	Logger dscope.Inject[logs.Logger]
}

var _ Completer = new(ChatClient)

func (c *ChatClient) Model() string {
	return c.model
}

type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float32   `json:"temperature,omitempty"`
}

type ChatCompletionResponse struct {
	Choices []ChatCompletionChoice `json:"choices"`
}

type ChatCompletionChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type ErrorResponse struct {
	Error *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code           any     `json:"code,omitempty"`
	Message        string  `json:"message,omitempty"`
	Param          *string `json:"param,omitempty"`
	Type           string  `json:"type,omitempty"`
	HTTPStatusCode int     `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

var ErrRetryable = errors.New("retryable")

type ChatError struct {
	Err     error
	Request ChatCompletionRequest
}

var _ error = ChatError{}

func (c ChatError) Error() string {
	return c.Err.Error()
}

func (c ChatError) Unwrap() error {
	return c.Err
}

func (c *ChatClient) Complete(ctx context.Context, messages []Message) (string, error) {
	req := ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	c.Logger().InfoContext(ctx, "requesting completion",
		"model", c.model,
	)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", ChatError{
			Err:     err,
			Request: req,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == nil {
			err := fmt.Errorf("bad status: %d, body: %s", resp.StatusCode, string(body))
			if resp.StatusCode == http.StatusTooManyRequests {
				return "", errors.Join(err, ErrRetryable)
			}
			return "", ChatError{
				Err:     err,
				Request: req,
			}
		}

		errResp.Error.HTTPStatusCode = resp.StatusCode
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", errors.Join(errResp.Error, ErrRetryable)
		}
		return "", ChatError{
			Err:     errResp.Error,
			Request: req,
		}
	}

	var completion ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("error unmarshalling response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ChatError{
			Err:     fmt.Errorf("no choices in response"),
			Request: req,
		}
	}

	return completion.Choices[0].Message.Content, nil
}

type NewChatClient func(baseURL string, model string, apiKey string) *ChatClient

func (Module) NewChatClient(
	inject dscope.InjectStruct,
	client nets.HTTPClient,
) NewChatClient {
	return func(baseURL string, model string, apiKey string) *ChatClient {
		ret := &ChatClient{
			baseURL: baseURL,
			model:   model,
			apiKey:  apiKey,
			client:  client,
		}
		inject(&ret)
		return ret
	}
}
