package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"damdam/internal/config"
	"damdam/internal/model"
)

// emotionAPIResponse is the classifier wire format. Scores arrive as
// floats and are truncated to the 0~100 integer scale the store keeps.
type emotionAPIResponse struct {
	Result struct {
		EmotionScores struct {
			Happiness float64 `json:"happiness"`
			Sadness   float64 `json:"sadness"`
			Angry     float64 `json:"angry"`
			Neutral   float64 `json:"neutral"`
			Other     float64 `json:"other"`
		} `json:"emotion_scores"`
	} `json:"result"`
}

// EmotionClient calls the text and audio emotion classifier services.
type EmotionClient struct {
	httpClient *http.Client
	textURL    string
	audioURL   string
}

// NewEmotionClient creates a classifier client with a bounded timeout.
func NewEmotionClient(cfg *config.AnalysisConfig) *EmotionClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EmotionClient{
		httpClient: &http.Client{Timeout: timeout},
		textURL:    cfg.TextURL,
		audioURL:   cfg.AudioURL,
	}
}

// AnalyzeText classifies a text message.
func (c *EmotionClient) AnalyzeText(ctx context.Context, content string) (model.EmotionVector, error) {
	return c.analyze(ctx, c.textURL, map[string]string{"text": content})
}

// AnalyzeAudio classifies an uploaded voice message by its URL.
func (c *EmotionClient) AnalyzeAudio(ctx context.Context, audioRef string) (model.EmotionVector, error) {
	return c.analyze(ctx, c.audioURL, map[string]string{"audio_url": audioRef})
}

func (c *EmotionClient) analyze(ctx context.Context, url string, payload map[string]string) (model.EmotionVector, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return model.EmotionVector{}, fmt.Errorf("encode analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return model.EmotionVector{}, fmt.Errorf("build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.EmotionVector{}, fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Error().
			Int("status", resp.StatusCode).
			Str("url", url).
			Bytes("body", detail).
			Msg("emotion classifier returned error")
		return model.EmotionVector{}, fmt.Errorf("%w: status %d", ErrAnalysisUnavailable, resp.StatusCode)
	}

	var full emotionAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&full); err != nil {
		return model.EmotionVector{}, fmt.Errorf("%w: decode response: %v", ErrAnalysisUnavailable, err)
	}

	scores := full.Result.EmotionScores
	return model.EmotionVector{
		Happiness: int(scores.Happiness),
		Sadness:   int(scores.Sadness),
		Angry:     int(scores.Angry),
		Neutral:   int(scores.Neutral),
		Other:     int(scores.Other),
	}, nil
}
