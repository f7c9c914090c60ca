package model

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestUserContextNormalize(t *testing.T) {
	Convey("Given a user context with upstream sentinel values", t, func() {
		blank := "  "
		unknown := "UNKNOWN"
		unknownLower := "unknown"
		mbti := "INFP"
		absent := -1
		stress := 27

		userCtx := UserContext{
			Nickname:   &blank,
			Gender:     &unknown,
			Career:     &unknownLower,
			MBTI:       &mbti,
			Depression: &absent,
			Stress:     &stress,
		}

		Convey("Normalize maps sentinels to unset and keeps real values", func() {
			out := userCtx.Normalize()

			So(out.Nickname, ShouldBeNil)
			So(out.Gender, ShouldBeNil)
			So(out.Career, ShouldBeNil)
			So(out.MBTI, ShouldNotBeNil)
			So(*out.MBTI, ShouldEqual, "INFP")
			So(out.Depression, ShouldBeNil)
			So(out.Stress, ShouldNotBeNil)
			So(*out.Stress, ShouldEqual, 27)
		})

		Convey("Normalize does not mutate the receiver", func() {
			_ = userCtx.Normalize()
			So(userCtx.Nickname, ShouldNotBeNil)
		})

		Convey("Values are trimmed", func() {
			padded := "  dana  "
			out := UserContext{Nickname: &padded}.Normalize()
			So(*out.Nickname, ShouldEqual, "dana")
		})
	})
}
