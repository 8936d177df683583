// Package alerts turns sprint and allocation conditions into alert
// batches addressed to managerial users. Batches go out through the
// alert queue; nothing here ever fails the write that raised the
// condition.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridianhq/pulse/internal/adapters/mq/queue"
	"github.com/meridianhq/pulse/internal/domain/capacity"
	"github.com/meridianhq/pulse/internal/domain/model"
	"github.com/meridianhq/pulse/internal/domain/suppress"
	"github.com/meridianhq/pulse/pkg/logger"
	"github.com/meridianhq/pulse/pkg/metrics"
)

// Defaults for the at-risk streak detector.
const (
	DefaultStreak = 3
	DefaultWindow = 24 * time.Hour
)

// Store is the slice of the repository the dispatcher reads.
type Store interface {
	ListUsersByRole(ctx context.Context, roles ...model.Role) ([]model.User, error)
	RecentSprints(ctx context.Context, projectID string, limit int) ([]model.Sprint, error)
	RecentAlertExists(ctx context.Context, typ model.AlertType, projectID string, since time.Time) (bool, error)
}

// Queue accepts alert batches for asynchronous delivery.
type Queue interface {
	Enqueue(ctx context.Context, b queue.Batch) bool
}

// Dispatcher fans alert conditions out to every managerial user.
type Dispatcher struct {
	store  Store
	queue  Queue
	guard  suppress.Guard
	streak int
	window time.Duration
	logger logger.Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher with configuration options.
func NewDispatcher(store Store, q Queue, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		queue:  q,
		streak: DefaultStreak,
		window: DefaultWindow,
		logger: logger.Get().Named("alerts"),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.guard == nil {
		d.guard = suppress.NewInMemoryGuard(suppress.WithTTL(d.window))
	}

	return d
}

// NotifySprintFailure raises a sprint_failure alert for every managerial
// user. The caller is responsible for only invoking it when the sprint
// transitions into a failed outcome.
func (d *Dispatcher) NotifySprintFailure(ctx context.Context, project model.Project, sprint model.Sprint) {
	message := fmt.Sprintf("Sprint #%d in %s was marked as FAILURE.", sprint.SprintNumber, project.Name)
	metadata := map[string]any{
		"projectName":  project.Name,
		"sprintNumber": sprint.SprintNumber,
	}
	d.broadcast(ctx, alertTemplate{
		Type:      model.AlertSprintFailure,
		Message:   message,
		Severity:  model.SeverityCritical,
		ProjectID: project.ID,
		SprintID:  sprint.ID,
		Metadata:  metadata,
	})
}

// CheckConsecutiveAtRisk inspects the project's most recent sprints and
// raises a sprint_at_risk alert when the full streak is at risk. One
// alert per project per window; repeats are suppressed first in memory,
// then against the alert store.
func (d *Dispatcher) CheckConsecutiveAtRisk(ctx context.Context, project model.Project) {
	sprints, err := d.store.RecentSprints(ctx, project.ID, d.streak)
	if err != nil {
		metrics.RecordAlertError()
		d.logger.Error(ctx, "loading recent sprints failed",
			logger.String("projectID", project.ID), logger.Error(err))
		return
	}
	if len(sprints) < d.streak {
		return
	}
	for _, sp := range sprints {
		if sp.OverallOutcome != model.OutcomeAtRisk {
			return
		}
	}

	key := string(model.AlertSprintAtRisk) + ":" + project.ID
	if d.guard.SeenAndRecord(ctx, key) {
		metrics.RecordAlertSuppressed(string(model.AlertSprintAtRisk))
		return
	}

	since := d.now().Add(-d.window)
	exists, err := d.store.RecentAlertExists(ctx, model.AlertSprintAtRisk, project.ID, since)
	if err != nil {
		metrics.RecordAlertError()
		d.guard.Unrecord(ctx, key)
		d.logger.Error(ctx, "alert dedup lookup failed",
			logger.String("projectID", project.ID), logger.Error(err))
		return
	}
	if exists {
		metrics.RecordAlertSuppressed(string(model.AlertSprintAtRisk))
		return
	}

	message := fmt.Sprintf("Project %q has %d consecutive at-risk sprints.", project.Name, d.streak)
	sent := d.broadcast(ctx, alertTemplate{
		Type:      model.AlertSprintAtRisk,
		Message:   message,
		Severity:  model.SeverityHigh,
		ProjectID: project.ID,
		Metadata: map[string]any{
			"projectName":      project.Name,
			"consecutiveCount": d.streak,
		},
	})
	if !sent {
		d.guard.Unrecord(ctx, key)
	}
}

// NotifyOverAllocation raises an over_allocation alert for a resource the
// conflict report found over-committed. Repeats inside the window are
// suppressed in memory only; the report runs far more often than the
// condition changes.
func (d *Dispatcher) NotifyOverAllocation(ctx context.Context, resource model.Resource, usage capacity.Usage) {
	key := string(model.AlertOverAllocation) + ":" + resource.ID
	if d.guard.SeenAndRecord(ctx, key) {
		metrics.RecordAlertSuppressed(string(model.AlertOverAllocation))
		return
	}

	message := fmt.Sprintf("Resource %s is allocated %.1f%% against a capacity of %.1f%%.",
		resource.Name, usage.TotalAllocated, usage.Capacity)
	sent := d.broadcast(ctx, alertTemplate{
		Type:       model.AlertOverAllocation,
		Message:    message,
		Severity:   model.SeverityMedium,
		ResourceID: resource.ID,
		Metadata: map[string]any{
			"resourceName":   resource.Name,
			"totalAllocated": usage.TotalAllocated,
			"capacity":       usage.Capacity,
		},
	})
	if !sent {
		d.guard.Unrecord(ctx, key)
	}
}

// alertTemplate carries everything about an alert except the recipient.
type alertTemplate struct {
	Type       model.AlertType
	Message    string
	Severity   model.Severity
	ProjectID  string
	SprintID   string
	ResourceID string
	Metadata   map[string]any
}

// broadcast fans the template out to all managerial users and enqueues
// the batch. Returns true when the batch was handed to the queue.
func (d *Dispatcher) broadcast(ctx context.Context, tmpl alertTemplate) bool {
	recipients, err := d.store.ListUsersByRole(ctx, model.ManagerialRoles()...)
	if err != nil {
		metrics.RecordAlertError()
		d.logger.Error(ctx, "loading alert recipients failed",
			logger.String("alertType", string(tmpl.Type)), logger.Error(err))
		return false
	}
	if len(recipients) == 0 {
		d.logger.Warn(ctx, "no managerial users to notify",
			logger.String("alertType", string(tmpl.Type)))
		return false
	}

	now := d.now().UTC()
	batch := make(queue.Batch, 0, len(recipients))
	for _, user := range recipients {
		batch = append(batch, model.Alert{
			ID:         uuid.NewString(),
			Type:       tmpl.Type,
			Message:    tmpl.Message,
			Severity:   tmpl.Severity,
			UserID:     user.ID,
			ProjectID:  tmpl.ProjectID,
			SprintID:   tmpl.SprintID,
			ResourceID: tmpl.ResourceID,
			Metadata:   tmpl.Metadata,
			CreatedAt:  now,
		})
	}

	if !d.queue.Enqueue(ctx, batch) {
		metrics.RecordAlertError()
		d.logger.Error(ctx, "alert queue rejected batch",
			logger.String("alertType", string(tmpl.Type)),
			logger.Int("recipients", len(batch)))
		return false
	}
	return true
}
