package model

import "strings"

// UserContext is the profile/survey snapshot fed into reply generation.
// Every field is optional: nil means unset, never a sentinel string.
type UserContext struct {
	Nickname     *string `json:"nickname,omitempty" bson:"nickname,omitempty"`
	Age          *string `json:"age,omitempty" bson:"age,omitempty"`
	Gender       *string `json:"gender,omitempty" bson:"gender,omitempty"`
	Career       *string `json:"career,omitempty" bson:"career,omitempty"`
	MBTI         *string `json:"mbti,omitempty" bson:"mbti,omitempty"`
	BotCustom    *string `json:"bot_custom,omitempty" bson:"bot_custom,omitempty"`
	Depression   *int    `json:"depression,omitempty" bson:"depression,omitempty"`
	Anxiety      *int    `json:"anxiety,omitempty" bson:"anxiety,omitempty"`
	Stress       *int    `json:"stress,omitempty" bson:"stress,omitempty"`
	IsSuicidal   *bool   `json:"is_suicidal,omitempty" bson:"is_suicidal,omitempty"`
	StressReason *string `json:"stress_reason,omitempty" bson:"stress_reason,omitempty"`
}

// NormalizeOptional maps blank and "UNKNOWN" values to unset.
func NormalizeOptional(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" || strings.EqualFold(trimmed, "UNKNOWN") {
		return nil
	}
	return &trimmed
}

// NormalizeScore maps negative survey scores (the upstream "absent"
// convention) to unset.
func NormalizeScore(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}

// Normalize returns a copy with sentinel values converted to unset.
func (u UserContext) Normalize() UserContext {
	out := u
	for _, f := range []**string{
		&out.Nickname, &out.Age, &out.Gender, &out.Career,
		&out.MBTI, &out.BotCustom, &out.StressReason,
	} {
		if *f != nil {
			*f = NormalizeOptional(**f)
		}
	}
	for _, f := range []**int{&out.Depression, &out.Anxiety, &out.Stress} {
		if *f != nil {
			*f = NormalizeScore(**f)
		}
	}
	return out
}
