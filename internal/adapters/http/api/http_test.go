package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reputor/reputor/internal/adapters/http/api"
	"github.com/reputor/reputor/internal/adapters/repository"
	"github.com/reputor/reputor/internal/adapters/repository/sqlitestore"
	service "github.com/reputor/reputor/internal/app"
	"github.com/reputor/reputor/internal/domain/model"
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

func newMux(t *testing.T) (*http.ServeMux, *service.Service, *sqlitestore.Store) {
	t.Helper()
	store, err := sqlitestore.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	engine := service.New(store)
	if err := engine.EnsureRuleSet(context.Background()); err != nil {
		t.Fatalf("ensure rule set: %v", err)
	}

	mux := http.NewServeMux()
	api.NewServer(engine, engine).Register(context.Background(), mux)
	return mux, engine, store
}

func recomputeBody(subjectID string) string {
	return fmt.Sprintf(`{
		"subject_id": %q,
		"kind": "trust",
		"trigger": "manual",
		"reason": "operator request",
		"triggered_by": "ops:test"
	}`, subjectID)
}

func TestRoutes(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux, _, _ := newMux(t)

		Convey("The health endpoint serves the metrics registry", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("The metrics endpoint serves the same registry", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("The stats endpoint returns JSON", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")
		})

		Convey("Unknown paths fall through to 404", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRecomputeEndpoint(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux, _, _ := newMux(t)

		Convey("A valid recompute returns a bounded snapshot", func() {
			req := httptest.NewRequest(http.MethodPost, "/recompute", strings.NewReader(recomputeBody("subject-1")))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusOK)
			var resp struct {
				SubjectID      string             `json:"subject_id"`
				Kind           string             `json:"kind"`
				CompositeScore float64            `json:"composite_score"`
				Breakdown      map[string]float64 `json:"breakdown"`
				ModelVersion   string             `json:"model_version"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.SubjectID, ShouldEqual, "subject-1")
			So(resp.Kind, ShouldEqual, "trust")
			So(resp.CompositeScore, ShouldBeBetweenOrEqual, 0, 100)
			So(resp.ModelVersion, ShouldEqual, "default@v1")
			So(resp.Breakdown, ShouldNotBeEmpty)
		})

		Convey("A malformed body is rejected", func() {
			req := httptest.NewRequest(http.MethodPost, "/recompute", strings.NewReader("{"))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A missing subject_id is rejected", func() {
			body := `{"kind": "trust", "trigger": "manual", "reason": "x"}`
			req := httptest.NewRequest(http.MethodPost, "/recompute", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A manual trigger without a reason is rejected", func() {
			body := `{"subject_id": "s1", "kind": "trust", "trigger": "manual"}`
			req := httptest.NewRequest(http.MethodPost, "/recompute", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("An expired sandbox is rejected", func() {
			expired := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
			body := fmt.Sprintf(`{
				"subject_id": "s1", "kind": "trust", "trigger": "manual",
				"reason": "x",
				"sandbox": {"isolation_id": "sb-1", "expires_at": %q}
			}`, expired)
			req := httptest.NewRequest(http.MethodPost, "/recompute", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET is not accepted", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/recompute", nil))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestScoreAndHistoryEndpoints(t *testing.T) {
	Convey("Given a server with one recomputed subject", t, func() {
		mux, engine, _ := newMux(t)
		_, err := engine.Recompute(context.Background(), service.RecomputeRequest{
			SubjectID:   "subject-1",
			Kind:        model.KindTrust,
			Trigger:     model.TriggerManual,
			Reason:      "operator request",
			TriggeredBy: "ops:test",
		})
		So(err, ShouldBeNil)

		Convey("GET /scores returns the stored snapshot", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scores/subject-1?kind=trust", nil))

			So(w.Code, ShouldEqual, http.StatusOK)
			var resp struct {
				SubjectID      string  `json:"subject_id"`
				CompositeScore float64 `json:"composite_score"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.SubjectID, ShouldEqual, "subject-1")
			So(resp.CompositeScore, ShouldBeBetweenOrEqual, 0, 100)
		})

		Convey("GET /scores for an unknown subject is 404", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scores/ghost?kind=trust", nil))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("GET /scores with an empty subject id is 400", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scores/", nil))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET /history returns the audit rows", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/subject-1?kind=trust", nil))

			So(w.Code, ShouldEqual, http.StatusOK)
			var entries []map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &entries), ShouldBeNil)
			So(len(entries), ShouldEqual, 1)
			So(entries[0]["trigger"], ShouldEqual, "manual")
		})
	})
}

func TestRuleSetEndpoints(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux, engine, store := newMux(t)
		_ = engine

		Convey("GET /rulesets/default lists the seeded version", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rulesets/default", nil))

			So(w.Code, ShouldEqual, http.StatusOK)
			var versions []struct {
				Name             string `json:"name"`
				Tag              string `json:"tag"`
				ActiveSandbox    bool   `json:"is_active_sandbox"`
				ActiveProduction bool   `json:"is_active_production"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &versions), ShouldBeNil)
			So(len(versions), ShouldEqual, 1)
			So(versions[0].Tag, ShouldEqual, "v1")
			So(versions[0].ActiveSandbox, ShouldBeTrue)
			So(versions[0].ActiveProduction, ShouldBeTrue)
		})

		Convey("POST /rulesets rejects a non-normalizable config", func() {
			body := `{"name": "default", "tag": "v2", "config": {"weights": {"trust": {"tenure_strength": 0}}}}`
			req := httptest.NewRequest(http.MethodPost, "/rulesets", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("POST /rulesets/default/activate switches the sandbox flag", func() {
			cfg := newConfigWithTenureWeight(35)
			v2, err := store.CreateVersion(context.Background(), "default", "v2", cfg)
			So(err, ShouldBeNil)

			body := fmt.Sprintf(`{"id": %q, "environment": "sandbox"}`, v2.ID)
			req := httptest.NewRequest(http.MethodPost, "/rulesets/default/activate", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)

			active, err := store.ActiveVersion(context.Background(), "default", sandboxPartition(t))
			So(err, ShouldBeNil)
			So(active.Tag, ShouldEqual, "v2")
		})

		Convey("Activation for an unknown environment is rejected", func() {
			body := `{"id": "whatever", "environment": "staging"}`
			req := httptest.NewRequest(http.MethodPost, "/rulesets/default/activate", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET /rulesets/default/diff reports changed keys", func() {
			cfg := newConfigWithTenureWeight(35)
			_, err := store.CreateVersion(context.Background(), "default", "v2", cfg)
			So(err, ShouldBeNil)

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rulesets/default/diff?from=v1&to=v2", nil))

			So(w.Code, ShouldEqual, http.StatusOK)
			var resp struct {
				Changes []struct {
					Key string `json:"key"`
					Old string `json:"old_value"`
					New string `json:"new_value"`
				} `json:"changes"`
				HighImpact bool `json:"high_impact"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(len(resp.Changes), ShouldBeGreaterThanOrEqualTo, 1)
			So(resp.HighImpact, ShouldBeFalse)
		})

		Convey("Diff against a missing tag is 404", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rulesets/default/diff?from=v1&to=v9", nil))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func newConfigWithTenureWeight(weight float64) rules.Config {
	cfg := rules.DefaultConfig()
	cfg.Weights[model.KindTrust][rules.ComponentTenure] = weight
	return cfg
}

func sandboxPartition(t *testing.T) repository.Partition {
	t.Helper()
	return repository.Sandbox(model.SandboxContext{
		IsolationID: "sb-test",
		ExpiresAt:   time.Now().Add(time.Hour),
	})
}
