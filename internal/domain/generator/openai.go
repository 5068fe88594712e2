package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"storynest/internal/domain/story"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// OpenAIConfig configures an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	ChatModel   string
	ImageModel  string
	SpeechModel string
	Timeout     time.Duration
}

// OpenAI talks to the chat completion, image generation and speech endpoints
// of an OpenAI-compatible API.
type OpenAI struct {
	cfg        OpenAIConfig
	baseURL    string
	httpClient *http.Client
}

// NewOpenAI validates cfg and returns a client. The client holds no global
// state; callers own its lifetime.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("OpenAI API key is not configured")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("OpenAI base URL is not configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OpenAI{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
}

// GenerateText implements TextGenerator.
func (o *OpenAI) GenerateText(ctx context.Context, prompt string, params Params) (string, error) {
	req := chatRequest{
		Model:       o.cfg.ChatModel,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}
	if params.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: params.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt})
	if params.JSON {
		req.ResponseFormat = map[string]string{"type": "json_object"}
	}

	var resp chatResponse
	if err := o.postJSON(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", story.ErrEmptyOutput
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		content = resp.Choices[0].Text
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", story.ErrEmptyOutput
	}

	logrus.WithFields(logrus.Fields{
		"model": o.cfg.ChatModel,
		"bytes": len(content),
	}).Debug("Received story text")
	return content, nil
}

type imageRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
	N      int    `json:"n"`
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateImage implements ImageGenerator.
func (o *OpenAI) GenerateImage(ctx context.Context, prompt string, size string) (*story.Illustration, error) {
	var resp imageResponse
	err := o.postJSON(ctx, "/v1/images/generations", imageRequest{
		Model:  o.cfg.ImageModel,
		Prompt: prompt,
		Size:   size,
		N:      1,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("image generator returned no images")
	}

	img := &story.Illustration{Prompt: prompt}
	switch d := resp.Data[0]; {
	case d.URL != "":
		img.URL = d.URL
	case d.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(d.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image data: %w", err)
		}
		img.Data = data
		img.MIMEType = http.DetectContentType(data)
	default:
		return nil, errors.New("image generator returned an empty image")
	}
	return img, nil
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// Speech synthesizes text and returns encoded audio in the requested format.
func (o *OpenAI) Speech(ctx context.Context, text, voice, format string, speed float64) ([]byte, error) {
	body, err := json.Marshal(speechRequest{
		Model:          o.cfg.SpeechModel,
		Input:          text,
		Voice:          voice,
		ResponseFormat: format,
		Speed:          speed,
	})
	if err != nil {
		return nil, err
	}

	resp, err := o.do(ctx, "/v1/audio/speech", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("speech endpoint returned no audio")
	}
	return audio, nil
}

func (o *OpenAI) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	resp, err := o.do(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (o *OpenAI) do(ctx context.Context, path string, body []byte) (*http.Response, error) {
	url := o.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	log := logrus.WithField("url", url)
	log.Debug("Sending request")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.WithField("status", resp.StatusCode).Warn("Generation endpoint returned an error")
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(errBody))}
	}
	return resp, nil
}
