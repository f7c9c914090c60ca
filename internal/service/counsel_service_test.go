package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"damdam/internal/ai"
	"damdam/internal/broadcast"
	"damdam/internal/model"
	"damdam/internal/repository"
)

// fakeGateway scripts analysis and generation outcomes per test.
type fakeGateway struct {
	mu sync.Mutex

	emotion    model.EmotionVector
	reply      string
	summary    model.Summary
	textErr    error
	audioErr   error
	replyErr   error
	summaryErr error

	summarizeCalls int
	replyCalls     int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		emotion: model.EmotionVector{Happiness: 10, Sadness: 60, Angry: 5, Neutral: 20, Other: 5},
		reply:   "I hear you. That sounds really hard.",
		summary: model.Summary{Summary: "a short session", Analyse: "mostly sad", Arousal: "LOW", Valence: "NEGATIVE"},
	}
}

func (g *fakeGateway) AnalyzeText(context.Context, string) (model.EmotionVector, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.textErr != nil {
		return model.EmotionVector{}, g.textErr
	}
	return g.emotion, nil
}

func (g *fakeGateway) AnalyzeAudio(context.Context, string) (model.EmotionVector, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.audioErr != nil {
		return model.EmotionVector{}, g.audioErr
	}
	return g.emotion, nil
}

func (g *fakeGateway) GenerateReply(context.Context, model.UserContext, string, *model.EmotionVector) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replyCalls++
	if g.replyErr != nil {
		return "", g.replyErr
	}
	return g.reply, nil
}

func (g *fakeGateway) Summarize(context.Context, string, []model.ChatRecord) (model.Summary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.summarizeCalls++
	if g.summaryErr != nil {
		return model.Summary{}, g.summaryErr
	}
	return g.summary, nil
}

// flakySessionStore fails one scripted AppendRecord call to exercise
// mid-exchange store failures.
type flakySessionStore struct {
	*repository.MemorySessionStore
	failOnAppend int
	appends      int
}

func (s *flakySessionStore) AppendRecord(ctx context.Context, roomID string, record model.ChatRecord) error {
	s.appends++
	if s.appends == s.failOnAppend {
		return errors.New("store unavailable")
	}
	return s.MemorySessionStore.AppendRecord(ctx, roomID, record)
}

func newTestService(gateway ai.Gateway) (*CounselService, *repository.MemorySessionStore, *repository.MemoryTranscriptArchive, *broadcast.Hub) {
	store := repository.NewMemorySessionStore()
	archive := repository.NewMemoryTranscriptArchive()
	users := repository.NewMemoryUserContextProvider()
	hub := broadcast.NewHub()
	svc := NewCounselService(store, archive, users, gateway, hub)
	return svc, store, archive, hub
}

func TestHandleTextMessage(t *testing.T) {
	Convey("Given a counseling service", t, func() {
		ctx := context.Background()
		gateway := newFakeGateway()
		svc, store, _, hub := newTestService(gateway)

		Convey("The first message creates the session and completes an exchange", func() {
			sub := hub.Subscribe("room-1")
			defer sub.Close()

			event, err := svc.HandleTextMessage(ctx, "room-1", "user-1", "hello")
			So(err, ShouldBeNil)
			So(event.Sender, ShouldEqual, model.SenderAI)
			So(event.Message, ShouldEqual, gateway.reply)
			So(event.MessageOrder, ShouldEqual, 1)
			So(event.TokenCount, ShouldEqual, model.DefaultTokenBudget-1)

			Convey("Both records share the exchange order", func() {
				records, err := store.ReadAll(ctx, "room-1")
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 2)
				So(records[0].Sender, ShouldEqual, model.SenderUser)
				So(records[0].MessageOrder, ShouldEqual, 1)
				So(records[0].Emotion, ShouldNotBeNil)
				So(records[0].Emotion.Sadness, ShouldEqual, 60)
				So(records[1].Sender, ShouldEqual, model.SenderAI)
				So(records[1].MessageOrder, ShouldEqual, 1)
			})

			Convey("The user event is broadcast before the AI event", func() {
				first := <-sub.Events()
				second := <-sub.Events()
				So(first.Sender, ShouldEqual, model.SenderUser)
				So(first.Message, ShouldEqual, "hello")
				So(second.Sender, ShouldEqual, model.SenderAI)
				So(second.MessageOrder, ShouldEqual, first.MessageOrder)
			})
		})

		Convey("Message orders are gapless and strictly increasing", func() {
			for i := 1; i <= 10; i++ {
				event, err := svc.HandleTextMessage(ctx, "room-2", "user-1", fmt.Sprintf("msg %d", i))
				So(err, ShouldBeNil)
				So(event.MessageOrder, ShouldEqual, i)
			}

			session, err := store.Get(ctx, "room-2")
			So(err, ShouldBeNil)
			So(session.LastMessageOrder, ShouldEqual, 10)
			So(session.TokenBudget, ShouldEqual, model.DefaultTokenBudget-10)
		})

		Convey("Emotion analysis failure does not lose the message", func() {
			gateway.textErr = ai.ErrAnalysisUnavailable

			event, err := svc.HandleTextMessage(ctx, "room-3", "user-1", "bad day")
			So(err, ShouldBeNil)
			So(event.Message, ShouldEqual, gateway.reply)

			records, err := store.ReadAll(ctx, "room-3")
			So(err, ShouldBeNil)
			So(records[0].Emotion, ShouldBeNil)
		})

		Convey("Reply failure falls back without stalling, budget spent once", func() {
			gateway.replyErr = ai.ErrAnalysisUnavailable

			event, err := svc.HandleTextMessage(ctx, "room-4", "user-1", "anyone there?")
			So(err, ShouldBeNil)
			So(event.Message, ShouldEqual, FallbackReply)
			So(event.TokenCount, ShouldEqual, model.DefaultTokenBudget-1)

			records, err := store.ReadAll(ctx, "room-4")
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 2)
			So(records[1].Content, ShouldEqual, FallbackReply)
		})

		Convey("A retry after a mid-exchange store failure claims a fresh order", func() {
			// The second append (the AI record) fails, leaving the first
			// exchange half-done.
			flaky := &flakySessionStore{MemorySessionStore: repository.NewMemorySessionStore(), failOnAppend: 2}
			retrySvc := NewCounselService(flaky, repository.NewMemoryTranscriptArchive(),
				repository.NewMemoryUserContextProvider(), gateway, broadcast.NewHub())

			_, err := retrySvc.HandleTextMessage(ctx, "room-r", "user-1", "first try")
			So(err, ShouldNotBeNil)

			event, err := retrySvc.HandleTextMessage(ctx, "room-r", "user-1", "second try")
			So(err, ShouldBeNil)
			So(event.MessageOrder, ShouldEqual, 2)

			Convey("No two user records share a message order", func() {
				records, err := flaky.ReadAll(ctx, "room-r")
				So(err, ShouldBeNil)

				perOrder := make(map[int]int)
				for _, record := range records {
					if record.Sender == model.SenderUser {
						perOrder[record.MessageOrder]++
					}
				}
				So(perOrder[1], ShouldEqual, 1)
				So(perOrder[2], ShouldEqual, 1)

				session, err := flaky.Get(ctx, "room-r")
				So(err, ShouldBeNil)
				So(session.LastMessageOrder, ShouldEqual, 2)
			})
		})

		Convey("An exhausted budget never blocks the conversation", func() {
			for i := 0; i < model.DefaultTokenBudget+3; i++ {
				_, err := svc.HandleTextMessage(ctx, "room-5", "user-1", "more")
				So(err, ShouldBeNil)
			}

			session, err := store.Get(ctx, "room-5")
			So(err, ShouldBeNil)
			So(session.TokenBudget, ShouldEqual, 0)
			So(session.LastMessageOrder, ShouldEqual, model.DefaultTokenBudget+3)
		})
	})
}

func TestRoomIsolation(t *testing.T) {
	Convey("Given concurrent traffic across many rooms", t, func() {
		ctx := context.Background()
		svc, store, _, _ := newTestService(newFakeGateway())

		const rooms = 10
		const perRoom = 10

		var wg sync.WaitGroup
		for r := 0; r < rooms; r++ {
			roomID := fmt.Sprintf("room-%d", r)
			for m := 0; m < perRoom; m++ {
				wg.Add(1)
				go func(roomID string, m int) {
					defer wg.Done()
					_, err := svc.HandleTextMessage(ctx, roomID, "user-1", fmt.Sprintf("msg %d", m))
					if err != nil {
						t.Error(err)
					}
				}(roomID, m)
			}
		}
		wg.Wait()

		Convey("Every room ends with a gapless order sequence", func() {
			for r := 0; r < rooms; r++ {
				roomID := fmt.Sprintf("room-%d", r)

				records, err := store.ReadAll(ctx, roomID)
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, perRoom*2)

				seen := make(map[int]int)
				for _, record := range records {
					if record.Sender == model.SenderUser {
						seen[record.MessageOrder]++
					}
				}
				So(len(seen), ShouldEqual, perRoom)
				for order := 1; order <= perRoom; order++ {
					So(seen[order], ShouldEqual, 1)
				}

				session, err := store.Get(ctx, roomID)
				So(err, ShouldBeNil)
				So(session.LastMessageOrder, ShouldEqual, perRoom)
				So(session.TokenBudget, ShouldEqual, model.DefaultTokenBudget-perRoom)
			}
		})
	})
}

func TestHandleVoiceMessage(t *testing.T) {
	Convey("Given a room with a voice placeholder", t, func() {
		ctx := context.Background()
		gateway := newFakeGateway()
		svc, store, _, _ := newTestService(gateway)

		order, err := svc.HandleVoicePlaceholder(ctx, "room-v", "user-1", "https://files/audio/a.wav")
		So(err, ShouldBeNil)
		So(order, ShouldEqual, 1)

		Convey("The placeholder is recorded without emotion and without spending budget", func() {
			records, err := store.ReadAll(ctx, "room-v")
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 1)
			So(records[0].IsVoice, ShouldBeTrue)
			So(records[0].Emotion, ShouldBeNil)

			session, err := store.Get(ctx, "room-v")
			So(err, ShouldBeNil)
			So(session.TokenBudget, ShouldEqual, model.DefaultTokenBudget)
		})

		Convey("Resolving the voice message patches emotion in place", func() {
			event, err := svc.HandleVoiceMessage(ctx, "room-v", "user-1", order, "https://files/audio/a.wav")
			So(err, ShouldBeNil)
			So(event.Sender, ShouldEqual, model.SenderAI)
			So(event.MessageOrder, ShouldEqual, order)
			So(event.TokenCount, ShouldEqual, model.DefaultTokenBudget-1)

			records, err := store.ReadAll(ctx, "room-v")
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 2)
			So(records[0].Emotion, ShouldNotBeNil)
			So(records[0].MessageOrder, ShouldEqual, order)
			So(records[1].Sender, ShouldEqual, model.SenderAI)
		})

		Convey("Resolving the same placeholder twice is rejected", func() {
			_, err := svc.HandleVoiceMessage(ctx, "room-v", "user-1", order, "https://files/audio/a.wav")
			So(err, ShouldBeNil)

			_, err = svc.HandleVoiceMessage(ctx, "room-v", "user-1", order, "https://files/audio/a.wav")
			So(errors.Is(err, ErrMessageResolved), ShouldBeTrue)

			Convey("The duplicate call appends nothing and spends nothing", func() {
				records, err := store.ReadAll(ctx, "room-v")
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 2)

				aiRecords := 0
				for _, record := range records {
					if record.Sender == model.SenderAI {
						aiRecords++
					}
				}
				So(aiRecords, ShouldEqual, 1)

				session, err := store.Get(ctx, "room-v")
				So(err, ShouldBeNil)
				So(session.TokenBudget, ShouldEqual, model.DefaultTokenBudget-1)
			})
		})

		Convey("Audio analysis failure leaves the emotion empty but still replies", func() {
			gateway.audioErr = ai.ErrAnalysisUnavailable

			event, err := svc.HandleVoiceMessage(ctx, "room-v", "user-1", order, "https://files/audio/a.wav")
			So(err, ShouldBeNil)
			So(event.Message, ShouldEqual, gateway.reply)

			records, err := store.ReadAll(ctx, "room-v")
			So(err, ShouldBeNil)
			So(records[0].Emotion, ShouldBeNil)

			Convey("The completed exchange cannot be resolved again either", func() {
				_, err := svc.HandleVoiceMessage(ctx, "room-v", "user-1", order, "https://files/audio/a.wav")
				So(errors.Is(err, ErrMessageResolved), ShouldBeTrue)
			})
		})

		Convey("An unknown message order is rejected", func() {
			_, err := svc.HandleVoiceMessage(ctx, "room-v", "user-1", 99, "https://files/audio/a.wav")
			So(errors.Is(err, ErrMessageNotFound), ShouldBeTrue)
		})

		Convey("A nonexistent room is rejected", func() {
			_, err := svc.HandleVoiceMessage(ctx, "no-such-room", "user-1", 1, "https://files/audio/a.wav")
			So(errors.Is(err, repository.ErrSessionNotFound), ShouldBeTrue)
		})
	})
}

func TestCloseSession(t *testing.T) {
	Convey("Given a room with history", t, func() {
		ctx := context.Background()
		gateway := newFakeGateway()
		svc, store, archive, _ := newTestService(gateway)

		_, err := svc.HandleTextMessage(ctx, "room-c", "user-1", "hello")
		So(err, ShouldBeNil)

		Convey("Close archives the transcript and clears live state", func() {
			ref, err := svc.CloseSession(ctx, "room-c")
			So(err, ShouldBeNil)
			So(ref, ShouldNotBeEmpty)

			_, err = store.Get(ctx, "room-c")
			So(errors.Is(err, repository.ErrSessionNotFound), ShouldBeTrue)

			transcript, err := archive.Read(ctx, ref)
			So(err, ShouldBeNil)
			So(transcript.RoomID, ShouldEqual, "room-c")
			So(transcript.UserID, ShouldEqual, "user-1")
			So(len(transcript.Records), ShouldEqual, 2)
			So(transcript.Summary.Summary, ShouldEqual, gateway.summary.Summary)

			Convey("A second close returns the same reference without summarizing again", func() {
				ref2, err := svc.CloseSession(ctx, "room-c")
				So(err, ShouldBeNil)
				So(ref2, ShouldEqual, ref)
				So(gateway.summarizeCalls, ShouldEqual, 1)
			})
		})

		Convey("Closing a reopened room keeps the first archive and clears the new state", func() {
			ref, err := svc.CloseSession(ctx, "room-c")
			So(err, ShouldBeNil)

			_, err = svc.HandleTextMessage(ctx, "room-c", "user-1", "back again")
			So(err, ShouldBeNil)

			ref2, err := svc.CloseSession(ctx, "room-c")
			So(err, ShouldBeNil)
			So(ref2, ShouldEqual, ref)
			So(gateway.summarizeCalls, ShouldEqual, 1)

			_, err = store.Get(ctx, "room-c")
			So(errors.Is(err, repository.ErrSessionNotFound), ShouldBeTrue)
		})

		Convey("Summary failure keeps the session open and retriable", func() {
			gateway.summaryErr = ai.ErrAnalysisUnavailable

			_, err := svc.CloseSession(ctx, "room-c")
			So(err, ShouldNotBeNil)

			session, err := store.Get(ctx, "room-c")
			So(err, ShouldBeNil)
			So(session.RoomID, ShouldEqual, "room-c")

			Convey("The retry succeeds once the summarizer recovers", func() {
				gateway.mu.Lock()
				gateway.summaryErr = nil
				gateway.mu.Unlock()

				ref, err := svc.CloseSession(ctx, "room-c")
				So(err, ShouldBeNil)
				So(ref, ShouldNotBeEmpty)
			})
		})

		Convey("Closing an unknown room fails", func() {
			_, err := svc.CloseSession(ctx, "never-opened")
			So(errors.Is(err, repository.ErrSessionNotFound), ShouldBeTrue)
		})
	})
}

func TestDeleteSession(t *testing.T) {
	Convey("Given a room with history", t, func() {
		ctx := context.Background()
		svc, store, _, _ := newTestService(newFakeGateway())

		_, err := svc.HandleTextMessage(ctx, "room-d", "user-1", "hello")
		So(err, ShouldBeNil)

		Convey("Delete discards the room without archiving", func() {
			So(svc.DeleteSession(ctx, "room-d"), ShouldBeNil)

			_, err := store.Get(ctx, "room-d")
			So(errors.Is(err, repository.ErrSessionNotFound), ShouldBeTrue)

			_, err = svc.CloseSession(ctx, "room-d")
			So(errors.Is(err, repository.ErrSessionNotFound), ShouldBeTrue)
		})

		Convey("Deleting an unknown room fails", func() {
			err := svc.DeleteSession(ctx, "never-opened")
			So(errors.Is(err, repository.ErrSessionNotFound), ShouldBeTrue)
		})
	})
}
