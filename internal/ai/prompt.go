package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"damdam/internal/model"
)

const counselorSystemPrompt = `You are a warm, professional counseling assistant.
Listen carefully, acknowledge the user's feelings, and answer in the user's language.
Keep replies short enough for a chat bubble. Never diagnose or prescribe.`

const summarySystemPrompt = `You summarize a finished counseling session.
Respond with a single JSON object and nothing else, with exactly these string fields:
"summary" (what the session was about), "analyse" (emotional trajectory of the user),
"arousal" (LOW/MEDIUM/HIGH), "valence" (NEGATIVE/NEUTRAL/POSITIVE).`

// buildReplyPrompt folds the user context and the latest emotion scores
// into the user-turn prompt. Unset context fields are omitted entirely.
func buildReplyPrompt(userCtx model.UserContext, message string, emotion *model.EmotionVector) string {
	var b strings.Builder

	b.WriteString("User profile:\n")
	writeOptional(&b, "nickname", userCtx.Nickname)
	writeOptional(&b, "age group", userCtx.Age)
	writeOptional(&b, "gender", userCtx.Gender)
	writeOptional(&b, "career", userCtx.Career)
	writeOptional(&b, "mbti", userCtx.MBTI)
	writeOptional(&b, "counselor persona", userCtx.BotCustom)
	writeOptionalInt(&b, "depression score", userCtx.Depression)
	writeOptionalInt(&b, "anxiety score", userCtx.Anxiety)
	writeOptionalInt(&b, "stress score", userCtx.Stress)
	if userCtx.IsSuicidal != nil && *userCtx.IsSuicidal {
		b.WriteString("- flagged for suicide risk: handle with extra care\n")
	}
	writeOptional(&b, "reported stress reason", userCtx.StressReason)

	if emotion != nil {
		fmt.Fprintf(&b, "\nDetected emotion (0-100): happiness=%d sadness=%d angry=%d neutral=%d other=%d\n",
			emotion.Happiness, emotion.Sadness, emotion.Angry, emotion.Neutral, emotion.Other)
	}

	b.WriteString("\nUser message:\n")
	b.WriteString(message)
	return b.String()
}

// buildSummaryPrompt lays out the full transcript for the summarizer.
func buildSummaryPrompt(roomID string, records []model.ChatRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Counseling room %s transcript:\n", roomID)
	for _, record := range records {
		fmt.Fprintf(&b, "[%d] %s: %s\n", record.MessageOrder, record.Sender, record.Content)
	}
	return b.String()
}

// parseSummary extracts the JSON report from the model output. Models
// occasionally wrap JSON in prose or code fences, so scan for the
// outermost object.
func parseSummary(content string) (model.Summary, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return model.Summary{}, fmt.Errorf("no JSON object in summary output")
	}

	var summary model.Summary
	if err := json.Unmarshal([]byte(content[start:end+1]), &summary); err != nil {
		return model.Summary{}, fmt.Errorf("decode summary output: %w", err)
	}
	if summary.Summary == "" {
		return model.Summary{}, fmt.Errorf("summary output missing summary field")
	}
	return summary, nil
}

func writeOptional(b *strings.Builder, label string, value *string) {
	if value != nil {
		fmt.Fprintf(b, "- %s: %s\n", label, *value)
	}
}

func writeOptionalInt(b *strings.Builder, label string, value *int) {
	if value != nil {
		fmt.Fprintf(b, "- %s: %d\n", label, *value)
	}
}
