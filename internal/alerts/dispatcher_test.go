package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/meridianhq/pulse/internal/adapters/mq/queue"
	"github.com/meridianhq/pulse/internal/domain/capacity"
	"github.com/meridianhq/pulse/internal/domain/model"
	"github.com/meridianhq/pulse/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

type stubStore struct {
	users       []model.User
	sprints     []model.Sprint
	alertExists bool

	usersErr  error
	existsErr error

	existsCalls int
}

func (s *stubStore) ListUsersByRole(_ context.Context, _ ...model.Role) ([]model.User, error) {
	return s.users, s.usersErr
}

func (s *stubStore) RecentSprints(_ context.Context, _ string, limit int) ([]model.Sprint, error) {
	if len(s.sprints) > limit {
		return s.sprints[:limit], nil
	}
	return s.sprints, nil
}

func (s *stubStore) RecentAlertExists(_ context.Context, _ model.AlertType, _ string, _ time.Time) (bool, error) {
	s.existsCalls++
	return s.alertExists, s.existsErr
}

type captureQueue struct {
	mu      sync.Mutex
	batches []queue.Batch
	reject  bool
}

func (q *captureQueue) Enqueue(_ context.Context, b queue.Batch) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reject {
		return false
	}
	q.batches = append(q.batches, b)
	return true
}

func (q *captureQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.batches)
}

func managers() []model.User {
	return []model.User{
		{ID: uuid.NewString(), Name: "Pat", Role: model.RolePM},
		{ID: uuid.NewString(), Name: "Ash", Role: model.RoleAdmin},
	}
}

func atRiskSprints(n int) []model.Sprint {
	out := make([]model.Sprint, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.Sprint{
			ID:             uuid.NewString(),
			SprintNumber:   n - i,
			OverallOutcome: model.OutcomeAtRisk,
		})
	}
	return out
}

func TestNotifySprintFailure(t *testing.T) {
	Convey("Given managerial users exist", t, func() {
		ctx := context.Background()
		store := &stubStore{users: managers()}
		q := &captureQueue{}
		d := NewDispatcher(store, q)

		project := model.Project{ID: "p1", Name: "Atlas"}
		sprint := model.Sprint{ID: "s1", SprintNumber: 4, ProjectID: "p1"}

		Convey("a failure fans out to every manager in one batch", func() {
			d.NotifySprintFailure(ctx, project, sprint)

			So(q.count(), ShouldEqual, 1)
			batch := q.batches[0]
			So(len(batch), ShouldEqual, 2)
			So(batch[0].Type, ShouldEqual, model.AlertSprintFailure)
			So(batch[0].Severity, ShouldEqual, model.SeverityCritical)
			So(batch[0].Message, ShouldEqual, "Sprint #4 in Atlas was marked as FAILURE.")
			So(batch[0].ProjectID, ShouldEqual, "p1")
			So(batch[0].SprintID, ShouldEqual, "s1")
			So(batch[0].UserID, ShouldNotEqual, batch[1].UserID)
			So(batch[0].Metadata["sprintNumber"], ShouldEqual, 4)
		})

		Convey("a recipient lookup failure drops the alert quietly", func() {
			store.usersErr = errors.New("db down")
			d.NotifySprintFailure(ctx, project, sprint)
			So(q.count(), ShouldEqual, 0)
		})

		Convey("no managers means nothing is enqueued", func() {
			store.users = nil
			d.NotifySprintFailure(ctx, project, sprint)
			So(q.count(), ShouldEqual, 0)
		})
	})
}

func TestCheckConsecutiveAtRisk(t *testing.T) {
	Convey("Given a project with recent sprints", t, func() {
		ctx := context.Background()
		project := model.Project{ID: "p1", Name: "Atlas"}

		Convey("three at-risk sprints raise one alert", func() {
			store := &stubStore{users: managers(), sprints: atRiskSprints(3)}
			q := &captureQueue{}
			d := NewDispatcher(store, q)

			d.CheckConsecutiveAtRisk(ctx, project)

			So(q.count(), ShouldEqual, 1)
			batch := q.batches[0]
			So(batch[0].Type, ShouldEqual, model.AlertSprintAtRisk)
			So(batch[0].Severity, ShouldEqual, model.SeverityHigh)
			So(batch[0].Message, ShouldEqual, `Project "Atlas" has 3 consecutive at-risk sprints.`)
			So(batch[0].Metadata["consecutiveCount"], ShouldEqual, 3)
		})

		Convey("a healthy sprint in the streak suppresses the alert", func() {
			sprints := atRiskSprints(3)
			sprints[1].OverallOutcome = model.OutcomeSuccess
			store := &stubStore{users: managers(), sprints: sprints}
			q := &captureQueue{}
			d := NewDispatcher(store, q)

			d.CheckConsecutiveAtRisk(ctx, project)
			So(q.count(), ShouldEqual, 0)
		})

		Convey("fewer sprints than the streak never alert", func() {
			store := &stubStore{users: managers(), sprints: atRiskSprints(2)}
			q := &captureQueue{}
			d := NewDispatcher(store, q)

			d.CheckConsecutiveAtRisk(ctx, project)
			So(q.count(), ShouldEqual, 0)
		})

		Convey("a repeat inside the window is suppressed in memory", func() {
			store := &stubStore{users: managers(), sprints: atRiskSprints(3)}
			q := &captureQueue{}
			d := NewDispatcher(store, q)

			d.CheckConsecutiveAtRisk(ctx, project)
			d.CheckConsecutiveAtRisk(ctx, project)

			So(q.count(), ShouldEqual, 1)
			So(store.existsCalls, ShouldEqual, 1)
		})

		Convey("a stored alert inside the window is suppressed", func() {
			store := &stubStore{users: managers(), sprints: atRiskSprints(3), alertExists: true}
			q := &captureQueue{}
			d := NewDispatcher(store, q)

			d.CheckConsecutiveAtRisk(ctx, project)
			So(q.count(), ShouldEqual, 0)
		})

		Convey("a rejected batch frees the guard for a retry", func() {
			store := &stubStore{users: managers(), sprints: atRiskSprints(3)}
			q := &captureQueue{reject: true}
			d := NewDispatcher(store, q)

			d.CheckConsecutiveAtRisk(ctx, project)
			So(q.count(), ShouldEqual, 0)

			q.reject = false
			d.CheckConsecutiveAtRisk(ctx, project)
			So(q.count(), ShouldEqual, 1)
		})

		Convey("the streak length is configurable", func() {
			store := &stubStore{users: managers(), sprints: atRiskSprints(2)}
			q := &captureQueue{}
			d := NewDispatcher(store, q, WithStreak(2))

			d.CheckConsecutiveAtRisk(ctx, project)
			So(q.count(), ShouldEqual, 1)
			So(q.batches[0][0].Message, ShouldEqual, `Project "Atlas" has 2 consecutive at-risk sprints.`)
		})
	})
}

func TestNotifyOverAllocation(t *testing.T) {
	Convey("Given an over-committed resource", t, func() {
		ctx := context.Background()
		store := &stubStore{users: managers()}
		q := &captureQueue{}
		d := NewDispatcher(store, q)

		resource := model.Resource{ID: "r1", Name: "Jordan"}
		usage := capacity.Usage{TotalAllocated: 130, Capacity: 100}

		Convey("the alert carries the usage numbers", func() {
			d.NotifyOverAllocation(ctx, resource, usage)

			So(q.count(), ShouldEqual, 1)
			batch := q.batches[0]
			So(batch[0].Type, ShouldEqual, model.AlertOverAllocation)
			So(batch[0].ResourceID, ShouldEqual, "r1")
			So(batch[0].Message, ShouldEqual, "Resource Jordan is allocated 130.0% against a capacity of 100.0%.")
		})

		Convey("repeats inside the window are suppressed", func() {
			d.NotifyOverAllocation(ctx, resource, usage)
			d.NotifyOverAllocation(ctx, resource, usage)
			So(q.count(), ShouldEqual, 1)
		})
	})
}
