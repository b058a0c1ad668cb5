package queue_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Areo-RGB/sprintgates/internal/adapters/mq/queue"
	"github.com/Areo-RGB/sprintgates/internal/domain/model"
)

func trigger(ts float64) queue.Trigger {
	return queue.Trigger{Source: model.SourceManual, LocalTime: ts}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))

		So(q.Len(ctx), ShouldEqual, 0)
		So(q.IsClosed(), ShouldBeFalse)

		Convey("When a trigger is enqueued", func() {
			So(q.Enqueue(ctx, trigger(100)), ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 1)

			Convey("Then it can be dequeued in order", func() {
				got := <-q.Dequeue(ctx)
				So(got.LocalTime, ShouldEqual, 100.0)
				So(q.Len(ctx), ShouldEqual, 0)
			})
		})
	})
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue at capacity", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))
		So(q.Enqueue(ctx, trigger(1)), ShouldBeTrue)
		So(q.Enqueue(ctx, trigger(2)), ShouldBeTrue)

		Convey("When another trigger arrives", func() {
			ok := q.Enqueue(ctx, trigger(3))

			Convey("Then it is dropped without blocking", func() {
				So(ok, ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 2)
			})
		})
	})
}

func TestInMemoryQueue_Close(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with buffered triggers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		So(q.Enqueue(ctx, trigger(1)), ShouldBeTrue)
		So(q.Enqueue(ctx, trigger(2)), ShouldBeTrue)

		Convey("When the queue closes", func() {
			So(q.Close(), ShouldBeNil)

			Convey("Then enqueue is refused", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, trigger(3)), ShouldBeFalse)
			})

			Convey("Then buffered triggers still drain before the channel closes", func() {
				out := q.Dequeue(ctx)
				got, ok := <-out
				So(ok, ShouldBeTrue)
				So(got.LocalTime, ShouldEqual, 1.0)

				got, ok = <-out
				So(ok, ShouldBeTrue)
				So(got.LocalTime, ShouldEqual, 2.0)

				select {
				case _, ok = <-out:
					So(ok, ShouldBeFalse)
				case <-time.After(2 * time.Second):
					So("dequeue channel did not close", ShouldBeEmpty)
				}
			})

			Convey("Then closing again is safe", func() {
				So(q.Close(), ShouldBeNil)
			})
		})
	})
}
