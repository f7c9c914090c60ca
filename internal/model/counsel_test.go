package model

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSessionDecrementToken(t *testing.T) {
	Convey("Given a session with the default budget", t, func() {
		session := Session{TokenBudget: DefaultTokenBudget}

		Convey("Each decrement spends one token", func() {
			session.DecrementToken()
			So(session.TokenBudget, ShouldEqual, DefaultTokenBudget-1)
		})

		Convey("The budget never goes below zero", func() {
			for i := 0; i < DefaultTokenBudget+5; i++ {
				session.DecrementToken()
			}
			So(session.TokenBudget, ShouldEqual, 0)
		})
	})
}

func TestEmotionVectorValidate(t *testing.T) {
	Convey("Given emotion vectors", t, func() {
		Convey("A nil vector is valid", func() {
			var vec *EmotionVector
			So(vec.Validate(), ShouldBeNil)
		})

		Convey("Non-negative scores are valid", func() {
			vec := &EmotionVector{Happiness: 100, Neutral: 0}
			So(vec.Validate(), ShouldBeNil)
		})

		Convey("Negative scores are malformed", func() {
			vec := &EmotionVector{Sadness: -1}
			So(errors.Is(vec.Validate(), ErrMalformedEmotion), ShouldBeTrue)
		})
	})
}
