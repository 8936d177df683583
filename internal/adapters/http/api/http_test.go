package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/meridianhq/pulse/internal/adapters/http/api"
	service "github.com/meridianhq/pulse/internal/app"
	"github.com/meridianhq/pulse/internal/domain/model"
	"github.com/meridianhq/pulse/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

type env struct {
	t   *testing.T
	srv *httptest.Server
}

// newEnv boots the full stack behind an httptest server: SQLite store,
// alert pipeline, service, routes. Tokens configure the authenticator;
// nil leaves authentication disabled.
func newEnv(t *testing.T, tokens map[string]string) *env {
	t.Helper()

	svc := service.New(
		service.WithDBPath(filepath.Join(t.TempDir(), "pulse.db")),
		service.WithWorkerCount(1),
		service.WithQueueSize(16),
	)
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("starting service: %v", err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, svc, api.NewAuthenticator(tokens)).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &env{t: t, srv: srv}
}

// do sends a JSON request and decodes the JSON response into out, which
// may be nil when the body does not matter.
func (e *env) do(method, path, token string, body, out any) int {
	e.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("encoding request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		e.t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			e.t.Fatalf("decoding %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *env) createProject(name string) string {
	var created map[string]any
	status := e.do(http.MethodPost, "/projects", "", map[string]any{"name": name}, &created)
	if status != http.StatusCreated {
		e.t.Fatalf("creating project: status %d", status)
	}
	return created["id"].(string)
}

func (e *env) createSprint(projectID string, number int) string {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, (number-1)*14)
	var created map[string]any
	status := e.do(http.MethodPost, "/projects/"+projectID+"/sprints", "", map[string]any{
		"sprintNumber": number,
		"startDate":    start.Format("2006-01-02"),
		"endDate":      start.AddDate(0, 0, 13).Format("2006-01-02"),
	}, &created)
	if status != http.StatusCreated {
		e.t.Fatalf("creating sprint: status %d", status)
	}
	return created["id"].(string)
}

func (e *env) createResource(name string) string {
	var created map[string]any
	status := e.do(http.MethodPost, "/resources", "", map[string]any{"name": name}, &created)
	if status != http.StatusCreated {
		e.t.Fatalf("creating resource: status %d", status)
	}
	return created["id"].(string)
}

// ratings builds a complete dimensions payload with every rating set to n.
func ratings(n int) map[string]any {
	dims := make(map[string]any, model.DimensionCount)
	for _, d := range model.Dimensions() {
		dims[string(d)] = map[string]any{"rating": n}
	}
	return dims
}

func TestSprintHealthEndpoints(t *testing.T) {
	Convey("Given a running API and a sprint", t, func() {
		e := newEnv(t, nil)
		projectID := e.createProject("Atlas")
		sprintID := e.createSprint(projectID, 1)

		Convey("When a complete health record is posted", func() {
			var created map[string]any
			status := e.do(http.MethodPost, "/sprints/"+sprintID+"/health", "",
				map[string]any{"dimensions": ratings(4)}, &created)

			Convey("Then it is stored with the derived score and RAG status", func() {
				So(status, ShouldEqual, http.StatusCreated)
				So(created["overallHealthScore"], ShouldEqual, 80)
				So(created["ragStatus"], ShouldEqual, "Green")
				So(created["sprintId"], ShouldEqual, sprintID)
				So(created["createdBy"], ShouldEqual, "anonymous")
			})

			Convey("And reading it back reports a new trend", func() {
				var got map[string]any
				status := e.do(http.MethodGet, "/sprints/"+sprintID+"/health", "", nil, &got)
				So(status, ShouldEqual, http.StatusOK)
				So(got["trend"].(map[string]any)["direction"], ShouldEqual, "new")
				So(got["previousHealth"], ShouldBeNil)
			})

			Convey("And a second post is rejected as a duplicate", func() {
				var errBody map[string]any
				status := e.do(http.MethodPost, "/sprints/"+sprintID+"/health", "",
					map[string]any{"dimensions": ratings(4)}, &errBody)
				So(status, ShouldEqual, http.StatusBadRequest)
				So(errBody["code"], ShouldEqual, "duplicate")
			})

			Convey("And a partial update reweights the score", func() {
				var updated map[string]any
				status := e.do(http.MethodPut, "/sprints/"+sprintID+"/health", "",
					map[string]any{"dimensions": map[string]any{
						string(model.DimRetrospective): map[string]any{"rating": 1},
					}}, &updated)
				So(status, ShouldEqual, http.StatusOK)
				So(updated["overallHealthScore"], ShouldAlmostEqual, 71.4, 0.001)
				So(updated["ragStatus"], ShouldEqual, "Amber")
			})

			Convey("And the history lists the sprint's entry", func() {
				var history []map[string]any
				status := e.do(http.MethodGet, "/sprints/"+sprintID+"/health/history", "", nil, &history)
				So(status, ShouldEqual, http.StatusOK)
				So(history, ShouldHaveLength, 1)
			})
		})

		Convey("When the payload names an unknown dimension", func() {
			dims := ratings(4)
			dims["velocity"] = map[string]any{"rating": 3}
			var errBody map[string]any
			status := e.do(http.MethodPost, "/sprints/"+sprintID+"/health", "",
				map[string]any{"dimensions": dims}, &errBody)

			Convey("Then the request fails validation", func() {
				So(status, ShouldEqual, http.StatusBadRequest)
				So(errBody["code"], ShouldEqual, "validation_error")
			})
		})

		Convey("When the sprint does not exist", func() {
			var errBody map[string]any
			status := e.do(http.MethodGet, "/sprints/nope/health", "", nil, &errBody)

			Convey("Then the API responds not found", func() {
				So(status, ShouldEqual, http.StatusNotFound)
				So(errBody["code"], ShouldEqual, "not_found")
			})
		})
	})
}

func TestAllocationEndpoints(t *testing.T) {
	Convey("Given a running API with a project and a resource", t, func() {
		e := newEnv(t, nil)
		projectID := e.createProject("Atlas")
		resourceID := e.createResource("Rivera")

		allocation := func(pct float64) map[string]any {
			return map[string]any{
				"resourceId":           resourceID,
				"projectId":            projectID,
				"allocationPercentage": pct,
				"startDate":            "2026-09-01",
				"endDate":              "2026-09-14",
			}
		}

		Convey("When an allocation within capacity is posted", func() {
			var created map[string]any
			status := e.do(http.MethodPost, "/allocations", "", allocation(60), &created)

			Convey("Then it is created", func() {
				So(status, ShouldEqual, http.StatusCreated)
				So(created["allocationPercentage"], ShouldEqual, 60)
			})

			Convey("And an overlapping over-commitment is rejected with totals", func() {
				var errBody map[string]any
				status := e.do(http.MethodPost, "/allocations", "", allocation(50), &errBody)
				So(status, ShouldEqual, http.StatusBadRequest)
				So(errBody["code"], ShouldEqual, "over_allocation")
				So(errBody["totalAllocated"], ShouldEqual, 110)
				So(errBody["capacity"], ShouldEqual, 100)
				So(errBody["warning"], ShouldEqual, true)
			})

			Convey("And the listing can be filtered by resource", func() {
				var listed []map[string]any
				status := e.do(http.MethodGet, "/allocations?resourceId="+resourceID, "", nil, &listed)
				So(status, ShouldEqual, http.StatusOK)
				So(listed, ShouldHaveLength, 1)
			})

			Convey("And the allocation can be updated and deleted", func() {
				id := created["id"].(string)

				var updated map[string]any
				status := e.do(http.MethodPut, "/allocations/"+id, "",
					map[string]any{"allocationPercentage": 30}, &updated)
				So(status, ShouldEqual, http.StatusOK)
				So(updated["allocationPercentage"], ShouldEqual, 30)

				status = e.do(http.MethodDelete, "/allocations/"+id, "", nil, nil)
				So(status, ShouldEqual, http.StatusNoContent)

				status = e.do(http.MethodGet, "/allocations/"+id, "", nil, nil)
				So(status, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the percentage is out of range", func() {
			var errBody map[string]any
			status := e.do(http.MethodPost, "/allocations", "", allocation(150), &errBody)

			Convey("Then the request fails validation", func() {
				So(status, ShouldEqual, http.StatusBadRequest)
				So(errBody["code"], ShouldEqual, "validation_error")
			})
		})

		Convey("When the conflict report is requested with no conflicts", func() {
			var conflicts []map[string]any
			status := e.do(http.MethodGet, "/allocations/conflicts", "", nil, &conflicts)

			Convey("Then it returns an empty list", func() {
				So(status, ShouldEqual, http.StatusOK)
				So(conflicts, ShouldBeEmpty)
			})
		})
	})
}

func TestAuthorization(t *testing.T) {
	Convey("Given an API with configured tokens", t, func() {
		e := newEnv(t, map[string]string{
			"pm-secret":     "PM",
			"member-secret": "Member",
		})

		body := map[string]any{"name": "Atlas"}

		Convey("When a write arrives without a token", func() {
			var errBody map[string]any
			status := e.do(http.MethodPost, "/projects", "", body, &errBody)

			Convey("Then it is rejected as unauthorized", func() {
				So(status, ShouldEqual, http.StatusUnauthorized)
				So(errBody["code"], ShouldEqual, "unauthorized")
			})
		})

		Convey("When a member tries to write", func() {
			var errBody map[string]any
			status := e.do(http.MethodPost, "/projects", "member-secret", body, &errBody)

			Convey("Then it is rejected as forbidden", func() {
				So(status, ShouldEqual, http.StatusForbidden)
				So(errBody["code"], ShouldEqual, "forbidden")
			})
		})

		Convey("When a PM writes", func() {
			var created map[string]any
			status := e.do(http.MethodPost, "/projects", "pm-secret", body, &created)

			Convey("Then the write succeeds", func() {
				So(status, ShouldEqual, http.StatusCreated)
				So(created["name"], ShouldEqual, "Atlas")
			})

			Convey("And reads stay open without a token", func() {
				var listed []map[string]any
				status := e.do(http.MethodGet, "/projects", "", nil, &listed)
				So(status, ShouldEqual, http.StatusOK)
				So(listed, ShouldHaveLength, 1)
			})
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given a running API", t, func() {
		e := newEnv(t, nil)

		Convey("When stats are requested", func() {
			var stats map[string]any
			status := e.do(http.MethodGet, "/stats", "", nil, &stats)

			Convey("Then the service reports its counters", func() {
				So(status, ShouldEqual, http.StatusOK)
				So(stats, ShouldNotBeEmpty)
			})
		})

		Convey("When the liveness endpoint is requested", func() {
			resp, err := http.Get(e.srv.URL + "/healthz")

			Convey("Then it serves the metrics registry", func() {
				So(err, ShouldBeNil)
				defer func() { _ = resp.Body.Close() }()
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
			})
		})
	})
}
