package queue_test

import (
	"context"
	"testing"

	"github.com/reputor/reputor/internal/adapters/mq/queue"
	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func sweepJob(subject string) queue.Job {
	return queue.Job{
		SubjectID:   subject,
		Kind:        model.KindTrust,
		Trigger:     model.TriggerRuleSetActivated,
		Reason:      "rule set activated",
		TriggeredBy: "system:activation-sweep",
	}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given an in-memory sweep queue", t, func() {
		ctx := context.Background()

		Convey("Enqueue and dequeue preserve order", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(8))

			So(q.Enqueue(ctx, sweepJob("sub-1")), ShouldBeTrue)
			So(q.Enqueue(ctx, sweepJob("sub-2")), ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 2)

			jobs := q.Dequeue(ctx)
			So((<-jobs).SubjectID, ShouldEqual, "sub-1")
			So((<-jobs).SubjectID, ShouldEqual, "sub-2")
			So(q.Len(ctx), ShouldEqual, 0)
		})

		Convey("A full queue rejects without blocking", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(1))

			So(q.Enqueue(ctx, sweepJob("sub-1")), ShouldBeTrue)
			So(q.Enqueue(ctx, sweepJob("sub-2")), ShouldBeFalse)
			So(q.Len(ctx), ShouldEqual, 1)
		})

		Convey("A closed queue rejects new jobs but drains buffered ones", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(4))

			So(q.Enqueue(ctx, sweepJob("sub-1")), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)
			So(q.IsClosed(), ShouldBeTrue)
			So(q.Enqueue(ctx, sweepJob("sub-2")), ShouldBeFalse)

			jobs := q.Dequeue(ctx)
			So((<-jobs).SubjectID, ShouldEqual, "sub-1")
			_, ok := <-jobs
			So(ok, ShouldBeFalse)
		})

		Convey("Close is idempotent", func() {
			q := queue.NewInMemoryQueue()

			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
		})
	})
}
