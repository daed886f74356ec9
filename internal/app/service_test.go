package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reputor/reputor/internal/adapters/repository"
	"github.com/reputor/reputor/internal/adapters/repository/sandbox"
	"github.com/reputor/reputor/internal/adapters/repository/sqlitestore"
	service "github.com/reputor/reputor/internal/app"
	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/internal/domain/normalize"
	"github.com/reputor/reputor/internal/domain/rules"
	"github.com/reputor/reputor/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newEngine(t *testing.T, seed bool) (*service.Service, *sqlitestore.Store) {
	t.Helper()
	store, err := sqlitestore.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	engine := service.New(store)
	if seed {
		if err := engine.EnsureRuleSet(context.Background()); err != nil {
			t.Fatalf("ensure rule set: %v", err)
		}
	}
	return engine, store
}

func manualRequest(subjectID string, kind model.ScoreKind) service.RecomputeRequest {
	return service.RecomputeRequest{
		SubjectID:   subjectID,
		Kind:        kind,
		Trigger:     model.TriggerManual,
		Reason:      "operator request",
		TriggeredBy: "ops:test",
	}
}

func TestRecomputeValidation(t *testing.T) {
	Convey("Given a seeded engine", t, func() {
		engine, _ := newEngine(t, true)
		ctx := context.Background()

		Convey("When a manual trigger has no reason", func() {
			req := manualRequest("subject-1", model.KindTrust)
			req.Reason = "  "
			_, err := engine.Recompute(ctx, req)

			Convey("Then the request is rejected", func() {
				So(errors.Is(err, service.ErrReasonRequired), ShouldBeTrue)
			})
		})

		Convey("When the score kind is unknown", func() {
			req := manualRequest("subject-1", model.ScoreKind("charisma"))
			_, err := engine.Recompute(ctx, req)

			Convey("Then the request is rejected", func() {
				So(errors.Is(err, service.ErrUnknownKind), ShouldBeTrue)
			})
		})

		Convey("When the trigger is unknown", func() {
			req := manualRequest("subject-1", model.KindTrust)
			req.Trigger = model.Trigger("telepathy")
			_, err := engine.Recompute(ctx, req)

			Convey("Then the request is rejected", func() {
				So(errors.Is(err, service.ErrUnknownTrigger), ShouldBeTrue)
			})
		})

		Convey("When the sandbox context has expired", func() {
			req := manualRequest("subject-1", model.KindTrust)
			req.Sandbox = &model.SandboxContext{
				IsolationID: "sb-old",
				ExpiresAt:   time.Now().Add(-time.Minute),
			}
			_, err := engine.Recompute(ctx, req)

			Convey("Then the request is rejected up front", func() {
				So(errors.Is(err, sandbox.ErrSandboxExpired), ShouldBeTrue)
			})
		})
	})
}

func TestRecomputePipeline(t *testing.T) {
	Convey("Given a seeded engine and a subject with strong signals", t, func() {
		engine, store := newEngine(t, true)
		ctx := context.Background()
		prod := repository.Production()
		now := time.Now().UTC()

		seedSubject := func(subjectID string, references int) {
			endA := now.AddDate(-1, -6, 0)
			So(store.AddEmployment(ctx, subjectID, model.EmploymentRecord{
				EmployerID: "acme", Start: endA.AddDate(-2, 0, 0), End: &endA, Verified: true,
			}, prod), ShouldBeNil)
			So(store.AddEmployment(ctx, subjectID, model.EmploymentRecord{
				EmployerID: "globex", Start: now.AddDate(-1, -6, 0), End: &now, Verified: true,
			}, prod), ShouldBeNil)
			sources := []string{"src-a", "src-b", "src-c", "src-a"}
			for i := 0; i < references; i++ {
				So(store.AddReference(ctx, subjectID, sources[i%len(sources)], 4.5, prod), ShouldBeNil)
			}
			So(store.SetRehireFlag(ctx, subjectID, "acme", true, prod), ShouldBeNil)
		}

		seedSubject("subject-strong", 4)
		seedSubject("subject-silent", 0)

		Convey("When the trust score is recomputed", func() {
			snap, err := engine.Recompute(ctx, manualRequest("subject-strong", model.KindTrust))

			Convey("Then a bounded, non-degraded snapshot is produced", func() {
				So(err, ShouldBeNil)
				So(snap.Composite, ShouldBeGreaterThanOrEqualTo, 0)
				So(snap.Composite, ShouldBeLessThanOrEqualTo, 100)
				So(snap.Degraded, ShouldBeFalse)
				So(snap.ModelVersion, ShouldEqual, "default@v1")
			})

			Convey("Then the breakdown carries stable component keys", func() {
				So(err, ShouldBeNil)
				So(snap.Breakdown, ShouldContainKey, rules.ComponentTenure)
				So(snap.Breakdown, ShouldContainKey, rules.ComponentRating)
				So(snap.Breakdown[rules.BreakdownRehireMultiplier], ShouldEqual, 1.1)
			})

			Convey("Then the snapshot is readable back through the service", func() {
				So(err, ShouldBeNil)
				got, err := engine.Score(ctx, "subject-strong", model.KindTrust, "", nil)
				So(err, ShouldBeNil)
				So(got.Composite, ShouldEqual, snap.Composite)
			})
		})

		Convey("When a referenced subject is compared to a silent one", func() {
			strong, err := engine.Recompute(ctx, manualRequest("subject-strong", model.KindTrust))
			So(err, ShouldBeNil)
			silent, err := engine.Recompute(ctx, manualRequest("subject-silent", model.KindTrust))
			So(err, ShouldBeNil)

			Convey("Then references strictly raise the composite", func() {
				So(strong.Composite, ShouldBeGreaterThan, silent.Composite)
			})
		})

		Convey("When the same request runs twice with unchanged signals", func() {
			first, err := engine.Recompute(ctx, manualRequest("subject-strong", model.KindTrust))
			So(err, ShouldBeNil)
			second, err := engine.Recompute(ctx, manualRequest("subject-strong", model.KindTrust))
			So(err, ShouldBeNil)

			Convey("Then the composite is identical", func() {
				So(second.Composite, ShouldAlmostEqual, first.Composite, 1e-9)
			})

			Convey("Then the audit trail records both runs, the second with zero delta", func() {
				entries, err := engine.History(ctx, "subject-strong", model.KindTrust, 10, nil)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].Delta, ShouldAlmostEqual, 0, 1e-9)
				So(entries[1].Delta, ShouldAlmostEqual, first.Composite, 1e-9)
				So(entries[0].Reason, ShouldEqual, "operator request")
				So(entries[0].TriggeredBy, ShouldEqual, "ops:test")
			})
		})

		Convey("When fraud flags are added", func() {
			clean, err := engine.Recompute(ctx, manualRequest("subject-strong", model.KindTrust))
			So(err, ShouldBeNil)
			So(store.AddFraudFlag(ctx, "subject-strong", prod), ShouldBeNil)
			flagged, err := engine.Recompute(ctx, manualRequest("subject-strong", model.KindTrust))
			So(err, ShouldBeNil)

			Convey("Then the penalty strictly lowers the composite", func() {
				So(flagged.Composite, ShouldBeLessThan, clean.Composite)
				So(flagged.Breakdown[rules.BreakdownFraudPenalty], ShouldEqual, -15)
			})
		})

		Convey("When fraud flags accumulate on a fresh subject", func() {
			riskRequest := manualRequest("subject-exposed", model.KindRisk)
			clean, err := engine.Recompute(ctx, riskRequest)
			So(err, ShouldBeNil)

			So(store.AddFraudFlag(ctx, "subject-exposed", prod), ShouldBeNil)
			one, err := engine.Recompute(ctx, riskRequest)
			So(err, ShouldBeNil)

			So(store.AddFraudFlag(ctx, "subject-exposed", prod), ShouldBeNil)
			two, err := engine.Recompute(ctx, riskRequest)
			So(err, ShouldBeNil)

			Convey("Then each flag strictly raises the risk composite", func() {
				So(one.Composite, ShouldBeGreaterThan, clean.Composite)
				So(two.Composite, ShouldBeGreaterThan, one.Composite)
			})

			Convey("Then the risk breakdown carries no cross-kind adjustments", func() {
				_, hasPenalty := two.Breakdown[rules.BreakdownFraudPenalty]
				So(hasPenalty, ShouldBeFalse)
				_, hasMultiplier := two.Breakdown[rules.BreakdownRehireMultiplier]
				So(hasMultiplier, ShouldBeFalse)
			})

			Convey("Then rehire eligibility does not move the risk score", func() {
				So(store.SetRehireFlag(ctx, "subject-exposed", "acme", true, prod), ShouldBeNil)
				eligible, err := engine.Recompute(ctx, riskRequest)
				So(err, ShouldBeNil)
				So(eligible.Composite, ShouldAlmostEqual, two.Composite, 1e-9)
			})
		})
	})
}

func TestRecomputeDegradation(t *testing.T) {
	Convey("Given an engine whose rule set has no versions", t, func() {
		engine, _ := newEngine(t, false)
		ctx := context.Background()

		Convey("When a recompute is triggered", func() {
			snap, err := engine.Recompute(ctx, manualRequest("subject-1", model.KindTrust))

			Convey("Then the result degrades to the neutral midpoint, not an error", func() {
				So(err, ShouldBeNil)
				So(snap.Composite, ShouldEqual, normalize.NeutralScore)
				So(snap.Degraded, ShouldBeTrue)
			})

			Convey("Then the degraded run still leaves an audit row", func() {
				entries, err := engine.History(ctx, "subject-1", model.KindTrust, 10, nil)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
				So(entries[0].New, ShouldEqual, normalize.NeutralScore)
			})
		})
	})
}

func TestSandboxRecompute(t *testing.T) {
	Convey("Given a seeded engine and a sandbox context", t, func() {
		engine, store := newEngine(t, true)
		ctx := context.Background()
		now := time.Now().UTC()
		sbxCtx := model.SandboxContext{IsolationID: "sb-1", ExpiresAt: now.Add(time.Hour)}
		sbxPart := repository.Sandbox(sbxCtx)
		prod := repository.Production()

		So(store.AddReference(ctx, "subject-1", "src-a", 5.0, sbxPart), ShouldBeNil)
		So(store.AddReference(ctx, "subject-1", "src-b", 1.0, prod), ShouldBeNil)

		Convey("When the sandbox score is recomputed", func() {
			req := manualRequest("subject-1", model.KindTrust)
			req.Sandbox = &sbxCtx
			snap, err := engine.Recompute(ctx, req)

			Convey("Then the snapshot is tagged with the isolation id and expiry", func() {
				So(err, ShouldBeNil)
				So(snap.SandboxID, ShouldEqual, "sb-1")
				So(snap.SandboxExpiresAt, ShouldNotBeNil)
			})

			Convey("Then the production partition has no snapshot", func() {
				So(err, ShouldBeNil)
				_, err := engine.Score(ctx, "subject-1", model.KindTrust, "", nil)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then sandbox history stays out of production history", func() {
				So(err, ShouldBeNil)
				prodEntries, err := engine.History(ctx, "subject-1", model.KindTrust, 10, nil)
				So(err, ShouldBeNil)
				So(prodEntries, ShouldBeEmpty)

				sbxEntries, err := engine.History(ctx, "subject-1", model.KindTrust, 10, &sbxCtx)
				So(err, ShouldBeNil)
				So(sbxEntries, ShouldHaveLength, 1)
				So(sbxEntries[0].SandboxID, ShouldEqual, "sb-1")
			})
		})
	})
}

func TestRuleSetAdministration(t *testing.T) {
	Convey("Given a seeded engine", t, func() {
		engine, _ := newEngine(t, true)
		ctx := context.Background()

		Convey("When a second version is created and activated for sandbox", func() {
			cfg := rules.DefaultConfig()
			cfg.Weights[model.KindTrust][rules.ComponentTenure] = 40
			v2, err := engine.CreateRuleSetVersion(ctx, "default", "v2", cfg)
			So(err, ShouldBeNil)
			So(engine.ActivateRuleSet(ctx, v2.ID, service.EnvSandbox), ShouldBeNil)

			Convey("Then versions list newest first with correct flags", func() {
				versions, err := engine.RuleSetVersions(ctx, "default")
				So(err, ShouldBeNil)
				So(versions, ShouldHaveLength, 2)

				byTag := map[string]rules.Version{}
				for _, v := range versions {
					byTag[v.Tag] = v
				}
				So(byTag["v2"].ActiveSandbox, ShouldBeTrue)
				So(byTag["v2"].ActiveProduction, ShouldBeFalse)
				So(byTag["v1"].ActiveSandbox, ShouldBeFalse)
				So(byTag["v1"].ActiveProduction, ShouldBeTrue)
			})

			Convey("Then the diff reports the single changed weight", func() {
				changes, highImpact, err := engine.DiffRuleSetVersions(ctx, "default", "v1", "v2")
				So(err, ShouldBeNil)
				So(changes, ShouldHaveLength, 1)
				So(changes[0].Key, ShouldEqual, "weights.trust.tenure_strength")
				So(highImpact, ShouldBeFalse)
			})
		})

		Convey("When activation names an unknown environment", func() {
			err := engine.ActivateRuleSet(ctx, "any-id", "staging")

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrUnknownEnvironment), ShouldBeTrue)
			})
		})

		Convey("When diffing against a missing tag", func() {
			_, _, err := engine.DiffRuleSetVersions(ctx, "default", "v1", "v99")

			Convey("Then it reports not found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When many keys change at once", func() {
			cfg := rules.DefaultConfig()
			cfg.Weights[model.KindTrust] = map[string]float64{rules.ComponentRating: 100}
			cfg.FraudPenaltyCap = 80
			cfg.RehireBonus = 1.3
			v3, err := engine.CreateRuleSetVersion(ctx, "default", "v3", cfg)
			So(err, ShouldBeNil)
			So(v3.Tag, ShouldEqual, "v3")

			Convey("Then the diff is flagged high impact", func() {
				_, highImpact, err := engine.DiffRuleSetVersions(ctx, "default", "v1", "v3")
				So(err, ShouldBeNil)
				So(highImpact, ShouldBeTrue)
			})
		})
	})
}

func TestSweepAfterProductionActivation(t *testing.T) {
	Convey("Given a started engine with production subjects", t, func() {
		engine, store := newEngine(t, true)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		engine.Start(ctx)
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			_ = engine.Stop(stopCtx)
		}()

		prod := repository.Production()
		So(store.AddReference(ctx, "subject-1", "src-a", 4.0, prod), ShouldBeNil)

		Convey("When a new version is activated for production", func() {
			v2, err := engine.CreateRuleSetVersion(ctx, "default", "v2", rules.DefaultConfig())
			So(err, ShouldBeNil)
			So(engine.ActivateRuleSet(ctx, v2.ID, service.EnvProduction), ShouldBeNil)

			Convey("Then the sweep recomputes every score kind for the subject", func() {
				deadline := time.Now().Add(5 * time.Second)
				var entries []model.ScoreHistoryEntry
				for time.Now().Before(deadline) {
					entries, err = engine.History(ctx, "subject-1", model.KindTrust, 10, nil)
					So(err, ShouldBeNil)
					if len(entries) > 0 {
						break
					}
					time.Sleep(20 * time.Millisecond)
				}
				So(entries, ShouldNotBeEmpty)
				So(entries[0].Trigger, ShouldEqual, model.TriggerRuleSetActivated)
				So(entries[0].TriggeredBy, ShouldEqual, "system:activation-sweep")
				So(entries[0].Reason, ShouldContainSubstring, "default@v2")
			})
		})
	})
}

func TestHistoryLimits(t *testing.T) {
	Convey("Given a seeded engine with repeated recomputes", t, func() {
		engine, _ := newEngine(t, true)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			_, err := engine.Recompute(ctx, manualRequest("subject-1", model.KindTrust))
			So(err, ShouldBeNil)
		}

		Convey("When history is requested with a tiny limit", func() {
			entries, err := engine.History(ctx, "subject-1", model.KindTrust, 2, nil)

			Convey("Then only that many rows return, newest first", func() {
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].CreatedAt.Before(entries[1].CreatedAt), ShouldBeFalse)
			})
		})

		Convey("When the kind is unknown", func() {
			_, err := engine.History(ctx, "subject-1", model.ScoreKind("charisma"), 5, nil)

			Convey("Then the request is rejected", func() {
				So(errors.Is(err, service.ErrUnknownKind), ShouldBeTrue)
			})
		})
	})
}
