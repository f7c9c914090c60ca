package repository

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"damdam/internal/model"
)

func TestMemoryTranscriptArchive(t *testing.T) {
	Convey("Given an empty archive", t, func() {
		ctx := context.Background()
		archive := NewMemoryTranscriptArchive()

		transcript := &model.Transcript{
			RoomID: "room-1",
			UserID: "user-1",
			Records: []model.ChatRecord{
				{Sender: model.SenderUser, MessageOrder: 1, Content: "hello"},
				{Sender: model.SenderAI, MessageOrder: 1, Content: "hi there"},
			},
			Summary: model.Summary{Summary: "greeting", Analyse: "calm", Arousal: "LOW", Valence: "NEUTRAL"},
		}

		Convey("Write then Read round-trips the transcript", func() {
			ref, err := archive.Write(ctx, transcript)
			So(err, ShouldBeNil)
			So(ref, ShouldNotBeEmpty)

			stored, err := archive.Read(ctx, ref)
			So(err, ShouldBeNil)
			So(stored.RoomID, ShouldEqual, "room-1")
			So(len(stored.Records), ShouldEqual, 2)
			So(stored.Summary.Valence, ShouldEqual, "NEUTRAL")
			So(stored.CreatedAt.IsZero(), ShouldBeFalse)
		})

		Convey("A second write for the same room keeps the first transcript", func() {
			ref, err := archive.Write(ctx, transcript)
			So(err, ShouldBeNil)

			other := &model.Transcript{RoomID: "room-1", UserID: "user-1", Summary: model.Summary{Summary: "rewritten"}}
			ref2, err := archive.Write(ctx, other)
			So(err, ShouldBeNil)
			So(ref2, ShouldEqual, ref)

			stored, err := archive.Read(ctx, ref)
			So(err, ShouldBeNil)
			So(stored.Summary.Summary, ShouldEqual, "greeting")
		})

		Convey("FindByRoom resolves the reference", func() {
			ref, err := archive.Write(ctx, transcript)
			So(err, ShouldBeNil)

			found, err := archive.FindByRoom(ctx, "room-1")
			So(err, ShouldBeNil)
			So(found, ShouldEqual, ref)

			_, err = archive.FindByRoom(ctx, "room-2")
			So(errors.Is(err, ErrArchiveNotFound), ShouldBeTrue)
		})

		Convey("Delete removes the transcript and the room mapping", func() {
			ref, err := archive.Write(ctx, transcript)
			So(err, ShouldBeNil)

			So(archive.Delete(ctx, ref), ShouldBeNil)

			_, err = archive.Read(ctx, ref)
			So(errors.Is(err, ErrArchiveNotFound), ShouldBeTrue)
			_, err = archive.FindByRoom(ctx, "room-1")
			So(errors.Is(err, ErrArchiveNotFound), ShouldBeTrue)
		})

		Convey("Reading an unknown reference fails with the sentinel", func() {
			_, err := archive.Read(ctx, "missing")
			So(errors.Is(err, ErrArchiveNotFound), ShouldBeTrue)
		})
	})
}
