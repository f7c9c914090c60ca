package broadcast

import (
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"damdam/internal/model"
)

func TestHub(t *testing.T) {
	Convey("Given a hub", t, func() {
		hub := NewHub()

		Convey("Subscribers receive events in publish order", func() {
			sub := hub.Subscribe("room-1")
			defer sub.Close()

			for i := 1; i <= 5; i++ {
				hub.Publish("room-1", model.OutboundEvent{MessageOrder: i})
			}

			for i := 1; i <= 5; i++ {
				event := <-sub.Events()
				So(event.MessageOrder, ShouldEqual, i)
			}
		})

		Convey("Events published before subscribing are not replayed", func() {
			hub.Publish("room-1", model.OutboundEvent{MessageOrder: 1})

			sub := hub.Subscribe("room-1")
			defer sub.Close()

			hub.Publish("room-1", model.OutboundEvent{MessageOrder: 2})

			event := <-sub.Events()
			So(event.MessageOrder, ShouldEqual, 2)
		})

		Convey("Rooms are isolated", func() {
			sub1 := hub.Subscribe("room-1")
			defer sub1.Close()
			sub2 := hub.Subscribe("room-2")
			defer sub2.Close()

			hub.Publish("room-1", model.OutboundEvent{Message: "only room 1"})

			event := <-sub1.Events()
			So(event.Message, ShouldEqual, "only room 1")

			select {
			case <-sub2.Events():
				t.Fatal("room-2 received a room-1 event")
			case <-time.After(50 * time.Millisecond):
			}
		})

		Convey("A slow subscriber is dropped instead of stalling the room", func() {
			slow := hub.Subscribe("room-1")

			// One event more than the buffer holds; the overflow drops
			// the subscriber rather than blocking the publisher.
			for i := 0; i < subscriberBufferSize+1; i++ {
				hub.Publish("room-1", model.OutboundEvent{MessageOrder: i})
			}

			So(hub.SubscriberCount("room-1"), ShouldEqual, 0)

			// Buffered events drain in order, then the stream ends.
			for i := 0; i < subscriberBufferSize; i++ {
				event := <-slow.Events()
				So(event.MessageOrder, ShouldEqual, i)
			}
			_, open := <-slow.Events()
			So(open, ShouldBeFalse)
		})

		Convey("Close is idempotent and unregisters the subscriber", func() {
			sub := hub.Subscribe("room-1")
			So(hub.SubscriberCount("room-1"), ShouldEqual, 1)

			sub.Close()
			sub.Close()
			So(hub.SubscriberCount("room-1"), ShouldEqual, 0)

			So(func() { hub.Publish("room-1", model.OutboundEvent{}) }, ShouldNotPanic)
		})

		Convey("Concurrent publishes across rooms do not interleave within a room", func() {
			subs := make([]*Subscriber, 0, 4)
			for r := 0; r < 4; r++ {
				subs = append(subs, hub.Subscribe(fmt.Sprintf("room-%d", r)))
			}
			defer func() {
				for _, sub := range subs {
					sub.Close()
				}
			}()

			done := make(chan struct{})
			for r := 0; r < 4; r++ {
				go func(r int) {
					for i := 1; i <= 10; i++ {
						hub.Publish(fmt.Sprintf("room-%d", r), model.OutboundEvent{MessageOrder: i})
					}
					done <- struct{}{}
				}(r)
			}
			for r := 0; r < 4; r++ {
				<-done
			}

			for _, sub := range subs {
				for i := 1; i <= 10; i++ {
					event := <-sub.Events()
					So(event.MessageOrder, ShouldEqual, i)
				}
			}
		})
	})
}
