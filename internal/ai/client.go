package ai

import (
	"context"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"damdam/internal/ai/component"
	"damdam/internal/config"
	"damdam/internal/model"
)

// Client is the production Gateway: an eino ChatModel for reply and
// summary generation plus HTTP clients for the emotion classifiers.
type Client struct {
	chatModel einomodel.BaseChatModel
	emotion   *EmotionClient
	timeout   time.Duration
}

// NewClient wires the gateway from configuration. Without an API key
// the LLM calls fail as unavailable and the pipeline degrades to its
// fallbacks; the emotion classifiers work regardless.
func NewClient(ctx context.Context, aiCfg *config.AIConfig, analysisCfg *config.AnalysisConfig) (*Client, error) {
	timeout := aiCfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		emotion: NewEmotionClient(analysisCfg),
		timeout: timeout,
	}

	if aiCfg.APIKey == "" {
		log.Warn().Msg("AI API key not configured, reply generation will use fallbacks")
		return c, nil
	}

	chatModel, err := component.NewChatModel(ctx, aiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	c.chatModel = chatModel
	return c, nil
}

// AnalyzeText classifies the emotion of a text message.
func (c *Client) AnalyzeText(ctx context.Context, content string) (model.EmotionVector, error) {
	return c.emotion.AnalyzeText(ctx, content)
}

// AnalyzeAudio classifies the emotion of a voice message.
func (c *Client) AnalyzeAudio(ctx context.Context, audioRef string) (model.EmotionVector, error) {
	return c.emotion.AnalyzeAudio(ctx, audioRef)
}

// GenerateReply produces the counselor reply for one user message.
func (c *Client) GenerateReply(ctx context.Context, userCtx model.UserContext, message string, emotion *model.EmotionVector) (string, error) {
	if c.chatModel == nil {
		return "", fmt.Errorf("%w: chat model not configured", ErrAnalysisUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []*schema.Message{
		schema.SystemMessage(counselorSystemPrompt),
		schema.UserMessage(buildReplyPrompt(userCtx, message, emotion)),
	}

	resp, err := c.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err)
	}
	return resp.Content, nil
}

// Summarize produces the session report for a closed room.
func (c *Client) Summarize(ctx context.Context, roomID string, records []model.ChatRecord) (model.Summary, error) {
	if c.chatModel == nil {
		return model.Summary{}, fmt.Errorf("%w: chat model not configured", ErrAnalysisUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []*schema.Message{
		schema.SystemMessage(summarySystemPrompt),
		schema.UserMessage(buildSummaryPrompt(roomID, records)),
	}

	resp, err := c.chatModel.Generate(ctx, messages)
	if err != nil {
		return model.Summary{}, fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err)
	}

	summary, err := parseSummary(resp.Content)
	if err != nil {
		return model.Summary{}, fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err)
	}
	return summary, nil
}
