package ai

import (
	"context"
	"errors"

	"damdam/internal/model"
)

// ErrAnalysisUnavailable marks an upstream classifier or LLM failure:
// timeout, transport error, or a non-2xx response. The orchestrator
// decides per call whether that is fatal to the exchange.
var ErrAnalysisUnavailable = errors.New("analysis unavailable")

// Gateway is the pipeline's view of the external AI services: two
// emotion classifiers and two generators, each an independent network
// round trip with its own timeout.
type Gateway interface {
	// AnalyzeText classifies the emotion of a text message.
	AnalyzeText(ctx context.Context, content string) (model.EmotionVector, error)

	// AnalyzeAudio classifies the emotion of an uploaded voice message.
	AnalyzeAudio(ctx context.Context, audioRef string) (model.EmotionVector, error)

	// GenerateReply produces the counselor reply for a user message.
	// emotion is nil when analysis failed or has not run.
	GenerateReply(ctx context.Context, userCtx model.UserContext, message string, emotion *model.EmotionVector) (string, error)

	// Summarize produces the session report for a closed room.
	Summarize(ctx context.Context, roomID string, records []model.ChatRecord) (model.Summary, error)
}
