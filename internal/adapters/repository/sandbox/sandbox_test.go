package sandbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reputor/reputor/internal/adapters/repository"
	"github.com/reputor/reputor/internal/adapters/repository/sandbox"
	"github.com/reputor/reputor/internal/adapters/repository/sqlitestore"
	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newStore(t *testing.T) repository.Store {
	t.Helper()
	s, err := sqlitestore.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBind(t *testing.T) {
	Convey("Given a backing store", t, func() {
		store := newStore(t)
		now := time.Now()

		Convey("When bound without a sandbox context", func() {
			g, err := sandbox.Bind(store, nil, now)

			Convey("Then the guard is production-bound", func() {
				So(err, ShouldBeNil)
				So(g.Partition().IsSandbox(), ShouldBeFalse)
			})
		})

		Convey("When bound to a live sandbox", func() {
			g, err := sandbox.Bind(store, &model.SandboxContext{
				IsolationID: "sb-1",
				ExpiresAt:   now.Add(time.Hour),
			}, now)

			Convey("Then the guard carries the isolation id", func() {
				So(err, ShouldBeNil)
				So(g.Partition().SandboxID(), ShouldEqual, "sb-1")
			})
		})

		Convey("When the sandbox context has no isolation id", func() {
			_, err := sandbox.Bind(store, &model.SandboxContext{ExpiresAt: now.Add(time.Hour)}, now)

			Convey("Then binding aborts as an isolation violation", func() {
				So(errors.Is(err, repository.ErrIsolationViolation), ShouldBeTrue)
			})
		})

		Convey("When the sandbox context has expired", func() {
			_, err := sandbox.Bind(store, &model.SandboxContext{
				IsolationID: "sb-old",
				ExpiresAt:   now.Add(-time.Minute),
			}, now)

			Convey("Then binding is rejected with the expiry sentinel", func() {
				So(errors.Is(err, sandbox.ErrSandboxExpired), ShouldBeTrue)
			})
		})
	})
}

func TestIsolation(t *testing.T) {
	Convey("Given guards bound to different partitions", t, func() {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now()

		sbxCtx := model.SandboxContext{IsolationID: "sb-1", ExpiresAt: now.Add(time.Hour)}
		sbxGuard, err := sandbox.Bind(store, &sbxCtx, now)
		So(err, ShouldBeNil)
		prodGuard, err := sandbox.Bind(store, nil, now)
		So(err, ShouldBeNil)

		otherPart := repository.Sandbox(model.SandboxContext{IsolationID: "sb-2", ExpiresAt: now.Add(time.Hour)})

		Convey("When a call names a partition other than the bound one", func() {
			_, err := sbxGuard.Signals(ctx, "subject-1", "", repository.Production())

			Convey("Then the guard aborts instead of degrading", func() {
				So(errors.Is(err, repository.ErrIsolationViolation), ShouldBeTrue)
			})

			Convey("And a foreign sandbox id is rejected the same way", func() {
				err := sbxGuard.AddFraudFlag(ctx, "subject-1", otherPart)
				So(errors.Is(err, repository.ErrIsolationViolation), ShouldBeTrue)

				_, err = prodGuard.History(ctx, "subject-1", model.KindTrust, 10, otherPart)
				So(errors.Is(err, repository.ErrIsolationViolation), ShouldBeTrue)
			})
		})

		Convey("When each guard writes and reads its own partition", func() {
			sbxPart := sbxGuard.Partition()
			prodPart := prodGuard.Partition()

			So(sbxGuard.AddReference(ctx, "subject-1", "src-a", 5.0, sbxPart), ShouldBeNil)
			So(prodGuard.AddReference(ctx, "subject-1", "src-b", 2.0, prodPart), ShouldBeNil)

			Convey("Then no row crosses the partition boundary", func() {
				sbxSig, err := sbxGuard.Signals(ctx, "subject-1", "", sbxPart)
				So(err, ShouldBeNil)
				So(sbxSig.ReferenceCount, ShouldEqual, 1)
				So(sbxSig.AverageRating, ShouldAlmostEqual, 5.0, 1e-9)

				prodSig, err := prodGuard.Signals(ctx, "subject-1", "", prodPart)
				So(err, ShouldBeNil)
				So(prodSig.ReferenceCount, ShouldEqual, 1)
				So(prodSig.AverageRating, ShouldAlmostEqual, 2.0, 1e-9)
			})
		})

		Convey("When a snapshot carries a foreign sandbox tag", func() {
			err := sbxGuard.UpsertSnapshot(ctx, model.ScoreSnapshot{
				SubjectID: "subject-1", Kind: model.KindTrust,
				Composite: 50, SandboxID: "sb-2", ComputedAt: now,
			}, sbxGuard.Partition())

			Convey("Then the write is refused", func() {
				So(errors.Is(err, repository.ErrIsolationViolation), ShouldBeTrue)
			})
		})

		Convey("When a history row carries a foreign sandbox tag", func() {
			err := prodGuard.AppendHistory(ctx, model.ScoreHistoryEntry{
				SubjectID: "subject-1", Kind: model.KindTrust,
				New: 50, Reason: "test", TriggeredBy: "system:test",
				Trigger: model.TriggerManual, SandboxID: "sb-1", CreatedAt: now,
			}, prodGuard.Partition())

			Convey("Then the write is refused", func() {
				So(errors.Is(err, repository.ErrIsolationViolation), ShouldBeTrue)
			})
		})

		Convey("When snapshots exist in both partitions", func() {
			sbxPart := sbxGuard.Partition()
			prodPart := prodGuard.Partition()

			So(sbxGuard.UpsertSnapshot(ctx, model.ScoreSnapshot{
				SubjectID: "subject-1", Kind: model.KindTrust,
				Composite: 10, SandboxID: "sb-1", ComputedAt: now,
			}, sbxPart), ShouldBeNil)
			So(prodGuard.UpsertSnapshot(ctx, model.ScoreSnapshot{
				SubjectID: "subject-1", Kind: model.KindTrust,
				Composite: 90, ComputedAt: now,
			}, prodPart), ShouldBeNil)

			Convey("Then each guard reads only its own row", func() {
				sbxSnap, err := sbxGuard.Snapshot(ctx, "subject-1", model.KindTrust, "", sbxPart)
				So(err, ShouldBeNil)
				So(sbxSnap.Composite, ShouldEqual, 10)

				prodSnap, err := prodGuard.Snapshot(ctx, "subject-1", model.KindTrust, "", prodPart)
				So(err, ShouldBeNil)
				So(prodSnap.Composite, ShouldEqual, 90)
			})
		})
	})
}
