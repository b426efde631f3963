package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Prompt перечисляет допустимые категории, модель должна ответить одним словом
const Prompt = "You are classifying photos of municipal infrastructure problems. " +
	"Answer with exactly one word from this list: electrical, water, infrastructure, " +
	"sanitation, environment, security, general. If the photo does not show any civic " +
	"issue, answer none."

var ErrEmptyResponse = errors.New("classifier returned no label")

type GeminiConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type geminiClient struct {
	conf   GeminiConfig
	client *http.Client
}

func NewGemini(conf GeminiConfig, client *http.Client) Classifier {
	if client == nil {
		client = &http.Client{Timeout: conf.Timeout}
	}
	if conf.BaseURL == "" {
		conf.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if conf.Model == "" {
		conf.Model = "gemini-1.5-flash"
	}
	return &geminiClient{conf: conf, client: client}
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *geminiClient) Classify(ctx context.Context, image []byte, contentType string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("image is empty")
	}
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}

	payload, err := json.Marshal(generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: Prompt},
				{InlineData: &inlineData{MimeType: contentType, Data: base64.StdEncoding.EncodeToString(image)}},
			},
		}},
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimSuffix(c.conf.BaseURL, "/"), url.PathEscape(c.conf.Model), url.QueryEscape(c.conf.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read classifier response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classifier status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode classifier response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("classifier error %d: %s", out.Error.Code, out.Error.Message)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	label := Normalize(out.Candidates[0].Content.Parts[0].Text)
	if label == "" {
		return "", ErrEmptyResponse
	}
	return label, nil
}
