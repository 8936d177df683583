// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	alertqueue "github.com/meridianhq/pulse/internal/adapters/mq/queue"
	workerpool "github.com/meridianhq/pulse/internal/adapters/mq/worker"
	"github.com/meridianhq/pulse/internal/adapters/repository"
	"github.com/meridianhq/pulse/internal/alerts"
	"github.com/meridianhq/pulse/internal/domain/capacity"
	"github.com/meridianhq/pulse/internal/domain/model"
	"github.com/meridianhq/pulse/internal/domain/scoring"
	"github.com/meridianhq/pulse/internal/domain/types"
	"github.com/meridianhq/pulse/pkg/cache"
	"github.com/meridianhq/pulse/pkg/database"
	"github.com/meridianhq/pulse/pkg/logger"
	"github.com/meridianhq/pulse/pkg/metrics"
)

// Defaults for service construction.
const (
	defaultQueueSize        = 1024
	defaultCacheTTL         = 30 * time.Second
	defaultConflictScanners = 8
	conflictReportCacheKey  = "reports:allocation-conflicts"
)

// Service wires the store, the alert pipeline, and the domain computations
// behind the HTTP API.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	cache      *cache.Cache
	alertQueue alertqueue.Queue
	workerPool *workerpool.Pool
	dispatcher *alerts.Dispatcher

	// Configuration
	dbPath       string
	cacheAddress string
	cacheTTL     time.Duration
	workerCount  int
	queueSize    int
	atRiskStreak int
	alertWindow  time.Duration

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDBPath sets the sqlite database path.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithStore injects a ready store, skipping database setup on Start.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithCacheAddress enables the redis report cache at the given address.
func WithCacheAddress(addr string) Option {
	return func(s *Service) {
		s.cacheAddress = addr
	}
}

// WithCacheTTL sets how long cached reports stay fresh.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithWorkerCount sets the number of alert delivery workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the alert queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithAtRiskStreak sets how many consecutive at-risk sprints raise an alert.
func WithAtRiskStreak(streak int) Option {
	return func(s *Service) {
		if streak > 0 {
			s.atRiskStreak = streak
		}
	}
}

// WithAlertWindow sets the dedup window for repeated alerts.
func WithAlertWindow(window time.Duration) Option {
	return func(s *Service) {
		if window > 0 {
			s.alertWindow = window
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dbPath:       "pulse.db",
		cacheTTL:     defaultCacheTTL,
		workerCount:  runtime.NumCPU() * 2,
		queueSize:    defaultQueueSize,
		atRiskStreak: alerts.DefaultStreak,
		alertWindow:  alerts.DefaultWindow,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting sprint health service...")

	if s.store == nil {
		db, err := database.New(database.WithDataSource(s.dbPath))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		store, err := repository.NewSQLiteStore(db)
		if err != nil {
			return fmt.Errorf("initialize store: %w", err)
		}
		s.store = store
		s.logger.Info(ctx, "using sqlite store", logger.String("path", s.dbPath))
	}

	if s.cacheAddress != "" {
		c, err := cache.New(ctx, cache.WithAddress(s.cacheAddress))
		if err != nil {
			// The report cache is an optimization; run without it.
			s.logger.Warn(ctx, "report cache unavailable, continuing without it",
				logger.String("address", s.cacheAddress), logger.Error(err))
		} else {
			s.cache = c
			s.logger.Info(ctx, "report cache connected", logger.String("address", s.cacheAddress))
		}
	}

	s.alertQueue = alertqueue.NewInMemoryQueue(
		alertqueue.WithCapacity(s.queueSize),
		alertqueue.WithBufferSize(s.queueSize),
	)
	s.workerPool = workerpool.NewPool(s.workerCount, s.alertQueue, s.store)
	s.workerPool.Start(ctx)

	s.dispatcher = alerts.NewDispatcher(s.store, s.alertQueue,
		alerts.WithStreak(s.atRiskStreak),
		alerts.WithWindow(s.alertWindow),
		alerts.WithLogger(s.logger.Named("alerts")),
	)

	s.started = true
	s.logger.Info(ctx, "sprint health service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("atRiskStreak", s.atRiskStreak),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping sprint health service...")

	// Shutting the pool down closes the queue and drains in-flight batches.
	if s.workerPool != nil {
		_ = s.workerPool.Shutdown(ctx)
	}

	if s.cache != nil {
		_ = s.cache.Close()
	}

	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(ctx, "sprint health service stopped")
}

// HealthInput carries a full health submission for a sprint.
type HealthInput struct {
	SprintID        string
	Dimensions      model.DimensionSet
	Outcome         model.Outcome         // empty means "use the sprint's stored outcome"
	GoalAchievement model.GoalAchievement // empty means "leave unchanged"
	FailureReasons  []string              // nil means "leave unchanged"
	Comments        *string               // nil means "leave unchanged"
	ActorID         string
}

// HealthDetail is a health record together with the previous sprint's
// record and the trend between the two.
type HealthDetail struct {
	Health   model.SprintHealth
	Previous *model.SprintHealth
	Trend    scoring.Trend
}

// RecordSprintHealth validates and persists the first health record for a
// sprint along with the sprint's review fields (one transaction), and
// raises any alerts the new outcome triggers.
func (s *Service) RecordSprintHealth(ctx context.Context, in HealthInput) (model.SprintHealth, error) {
	sprint, err := s.store.GetSprint(ctx, in.SprintID)
	if err != nil {
		return model.SprintHealth{}, err
	}

	outcome, err := resolveOutcome(in.Outcome, sprint.OverallOutcome)
	if err != nil {
		return model.SprintHealth{}, err
	}

	score, err := scoring.OverallScore(in.Dimensions, outcome)
	if err != nil {
		return model.SprintHealth{}, err
	}
	rag := scoring.RAG(score)

	review, err := buildReview(sprint.ID, outcome, in)
	if err != nil {
		return model.SprintHealth{}, err
	}

	created, err := s.store.CreateHealthWithReview(ctx, model.SprintHealth{
		ID:           uuid.NewString(),
		SprintID:     sprint.ID,
		Dimensions:   in.Dimensions,
		OverallScore: score,
		RAGStatus:    rag,
		CreatedBy:    in.ActorID,
		UpdatedBy:    in.ActorID,
	}, review)
	if err != nil {
		return model.SprintHealth{}, err
	}

	previousOutcome := sprint.OverallOutcome
	metrics.RecordHealthRecordCreated()
	metrics.RecordHealthScore(string(rag), score)

	s.raiseOutcomeAlerts(ctx, sprint, previousOutcome, outcome)
	return created, nil
}

// UpdateSprintHealth merges a partial resubmission into the sprint's
// existing health record and recomputes the derived fields.
func (s *Service) UpdateSprintHealth(ctx context.Context, in HealthInput) (model.SprintHealth, error) {
	sprint, err := s.store.GetSprint(ctx, in.SprintID)
	if err != nil {
		return model.SprintHealth{}, err
	}
	existing, err := s.store.GetHealthBySprint(ctx, in.SprintID)
	if err != nil {
		return model.SprintHealth{}, err
	}

	outcome, err := resolveOutcome(in.Outcome, sprint.OverallOutcome)
	if err != nil {
		return model.SprintHealth{}, err
	}

	dims := existing.Dimensions.Merge(in.Dimensions)
	score, err := scoring.OverallScore(dims, outcome)
	if err != nil {
		return model.SprintHealth{}, err
	}
	rag := scoring.RAG(score)

	existing.Dimensions = dims
	existing.OverallScore = score
	existing.RAGStatus = rag
	existing.UpdatedBy = in.ActorID

	review, err := buildReview(sprint.ID, outcome, in)
	if err != nil {
		return model.SprintHealth{}, err
	}

	updated, err := s.store.UpdateHealthWithReview(ctx, existing, review)
	if err != nil {
		return model.SprintHealth{}, err
	}

	previousOutcome := sprint.OverallOutcome
	metrics.RecordHealthRecordUpdated()
	metrics.RecordHealthScore(string(rag), score)

	s.raiseOutcomeAlerts(ctx, sprint, previousOutcome, outcome)
	return updated, nil
}

// GetSprintHealth loads a sprint's health record with its trend against
// the previous sprint in the same project. The first sprint, or one whose
// predecessor has no health record yet, reports a "new" trend.
func (s *Service) GetSprintHealth(ctx context.Context, sprintID string) (HealthDetail, error) {
	sprint, err := s.store.GetSprint(ctx, sprintID)
	if err != nil {
		return HealthDetail{}, err
	}
	health, err := s.store.GetHealthBySprint(ctx, sprintID)
	if err != nil {
		return HealthDetail{}, err
	}

	var previous *model.SprintHealth
	var previousScore *float64
	if sprint.SprintNumber > 1 {
		prevSprint, err := s.store.GetSprintByNumber(ctx, sprint.ProjectID, sprint.SprintNumber-1)
		if err == nil {
			if prevHealth, err := s.store.GetHealthBySprint(ctx, prevSprint.ID); err == nil {
				previous = &prevHealth
				previousScore = &prevHealth.OverallScore
			} else if !errors.Is(err, repository.ErrNotFound) {
				return HealthDetail{}, err
			}
		} else if !errors.Is(err, repository.ErrNotFound) {
			return HealthDetail{}, err
		}
	}

	return HealthDetail{
		Health:   health,
		Previous: previous,
		Trend:    scoring.HealthTrend(previousScore, health.OverallScore),
	}, nil
}

// HealthHistory returns the project's health history up to and including
// the given sprint.
func (s *Service) HealthHistory(ctx context.Context, sprintID string) ([]types.HistoryEntry, error) {
	sprint, err := s.store.GetSprint(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	return s.store.HealthHistory(ctx, sprint.ProjectID, sprint.SprintNumber)
}

func resolveOutcome(requested, stored model.Outcome) (model.Outcome, error) {
	if requested == "" {
		if stored == "" {
			return model.OutcomeSuccess, nil
		}
		return stored, nil
	}
	if !requested.Valid() {
		return "", &scoring.ValidationError{Fields: []string{"overallOutcome"}}
	}
	return requested, nil
}

// buildReview validates and assembles the sprint review fields carried in
// a health submission. It runs before any write so a bad field leaves the
// sprint and its health record untouched.
func buildReview(sprintID string, outcome model.Outcome, in HealthInput) (repository.SprintReview, error) {
	review := repository.SprintReview{
		SprintID:       sprintID,
		OverallOutcome: &outcome,
		Comments:       in.Comments,
	}
	if in.GoalAchievement != "" {
		if !in.GoalAchievement.Valid() {
			return repository.SprintReview{}, &scoring.ValidationError{Fields: []string{"goalAchievement"}}
		}
		review.GoalAchievement = &in.GoalAchievement
	}
	if in.FailureReasons != nil {
		review.FailureReasons = &in.FailureReasons
	}
	return review, nil
}

// raiseOutcomeAlerts fires the alert checks a review outcome can trigger.
// Alert problems are logged by the dispatcher and never fail the write
// that got us here.
func (s *Service) raiseOutcomeAlerts(ctx context.Context, sprint model.Sprint, previous, current model.Outcome) {
	if s.dispatcher == nil {
		return
	}
	if current != model.OutcomeFailure && current != model.OutcomeAtRisk {
		return
	}

	project, err := s.store.GetProject(ctx, sprint.ProjectID)
	if err != nil {
		s.logger.Error(ctx, "loading project for alerts failed",
			logger.String("projectID", sprint.ProjectID), logger.Error(err))
		return
	}

	if current == model.OutcomeFailure && previous != model.OutcomeFailure {
		s.dispatcher.NotifySprintFailure(ctx, project, sprint)
	}
	if current == model.OutcomeAtRisk {
		s.dispatcher.CheckConsecutiveAtRisk(ctx, project)
	}
}

// AllocationInput carries a new allocation request.
type AllocationInput struct {
	ResourceID string
	ProjectID  string
	SprintID   string
	Percentage float64
	StartDate  time.Time
	EndDate    time.Time
}

// AllocationPatch carries a partial allocation update. Nil fields default
// to the stored allocation's values.
type AllocationPatch struct {
	Percentage *float64
	StartDate  *time.Time
	EndDate    *time.Time
	SprintID   *string
}

// CreateAllocation validates the request and persists the allocation. The
// capacity check and the insert happen in one transaction; an
// over-commitment comes back as *capacity.Error with the totals.
func (s *Service) CreateAllocation(ctx context.Context, in AllocationInput) (model.Allocation, error) {
	if in.EndDate.Before(in.StartDate) {
		return model.Allocation{}, &scoring.ValidationError{Fields: []string{"endDate"}}
	}
	if in.Percentage <= 0 || in.Percentage > capacity.DefaultCapacity {
		return model.Allocation{}, &scoring.ValidationError{Fields: []string{"allocationPercentage"}}
	}
	if _, err := s.store.GetProject(ctx, in.ProjectID); err != nil {
		return model.Allocation{}, err
	}
	if _, err := s.store.GetResource(ctx, in.ResourceID); err != nil {
		return model.Allocation{}, err
	}

	created, err := s.store.CreateAllocation(ctx, model.Allocation{
		ID:         uuid.NewString(),
		ResourceID: in.ResourceID,
		ProjectID:  in.ProjectID,
		SprintID:   in.SprintID,
		Percentage: in.Percentage,
		StartDate:  in.StartDate.UTC(),
		EndDate:    in.EndDate.UTC(),
	})
	if err != nil {
		var capErr *capacity.Error
		if errors.As(err, &capErr) {
			metrics.RecordCapacityRejection()
		}
		return model.Allocation{}, err
	}
	return created, nil
}

// UpdateAllocation applies a partial update to an allocation. Fields
// absent from the patch keep the stored values; the capacity check always
// runs against the resulting range with the allocation's own row excluded.
func (s *Service) UpdateAllocation(ctx context.Context, id string, patch AllocationPatch) (model.Allocation, error) {
	existing, err := s.store.GetAllocation(ctx, id)
	if err != nil {
		return model.Allocation{}, err
	}

	if patch.Percentage != nil {
		existing.Percentage = *patch.Percentage
	}
	if patch.StartDate != nil {
		existing.StartDate = patch.StartDate.UTC()
	}
	if patch.EndDate != nil {
		existing.EndDate = patch.EndDate.UTC()
	}
	if patch.SprintID != nil {
		existing.SprintID = *patch.SprintID
	}

	if existing.EndDate.Before(existing.StartDate) {
		return model.Allocation{}, &scoring.ValidationError{Fields: []string{"endDate"}}
	}
	if existing.Percentage <= 0 || existing.Percentage > capacity.DefaultCapacity {
		return model.Allocation{}, &scoring.ValidationError{Fields: []string{"allocationPercentage"}}
	}

	updated, err := s.store.UpdateAllocation(ctx, existing)
	if err != nil {
		var capErr *capacity.Error
		if errors.As(err, &capErr) {
			metrics.RecordCapacityRejection()
		}
		return model.Allocation{}, err
	}
	return updated, nil
}

// GetAllocation loads one allocation.
func (s *Service) GetAllocation(ctx context.Context, id string) (model.Allocation, error) {
	return s.store.GetAllocation(ctx, id)
}

// DeleteAllocation removes an allocation.
func (s *Service) DeleteAllocation(ctx context.Context, id string) error {
	return s.store.DeleteAllocation(ctx, id)
}

// ListAllocations returns allocations matching the filter.
func (s *Service) ListAllocations(ctx context.Context, f repository.AllocationFilter) ([]model.Allocation, error) {
	return s.store.ListAllocations(ctx, f)
}

// ConflictReport scans every resource's active allocations for groups
// with an identical date range whose combined percentage exceeds the
// resource's availability. Results are cached briefly when a report cache
// is configured; over-committed resources additionally raise an
// over_allocation alert.
func (s *Service) ConflictReport(ctx context.Context) ([]types.Conflict, error) {
	return cache.Through(ctx, s.cache, conflictReportCacheKey, s.cacheTTL,
		func(ctx context.Context) ([]types.Conflict, error) {
			return s.buildConflictReport(ctx)
		})
}

func (s *Service) buildConflictReport(ctx context.Context) ([]types.Conflict, error) {
	resources, err := s.store.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	projectNames := make(map[string]string, len(projects))
	for _, p := range projects {
		projectNames[p.ID] = p.Name
	}

	now := time.Now().UTC()
	perResource := make([][]types.Conflict, len(resources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultConflictScanners)
	for i, r := range resources {
		g.Go(func() error {
			allocs, err := s.store.ListActiveAllocations(gctx, r.ID, now)
			if err != nil {
				return fmt.Errorf("scan resource %s: %w", r.ID, err)
			}
			perResource[i] = resourceConflicts(r, allocs, projectNames)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var report []types.Conflict
	for i, conflicts := range perResource {
		report = append(report, conflicts...)
		if len(conflicts) > 0 && s.dispatcher != nil {
			worst := conflicts[0]
			for _, c := range conflicts[1:] {
				if c.TotalAllocated > worst.TotalAllocated {
					worst = c
				}
			}
			s.dispatcher.NotifyOverAllocation(ctx, resources[i], capacity.Usage{
				TotalAllocated: worst.TotalAllocated,
				Capacity:       worst.Capacity,
			})
		}
	}

	metrics.RecordConflictReport()
	return report, nil
}

// resourceConflicts groups one resource's allocations by exact date range
// and keeps the groups whose total exceeds the resource's availability.
func resourceConflicts(r model.Resource, allocs []model.Allocation, projectNames map[string]string) []types.Conflict {
	avail := r.Availability
	if avail == 0 {
		avail = capacity.DefaultCapacity
	}

	var out []types.Conflict
	for _, group := range capacity.GroupExactRanges(allocs) {
		usage := capacity.Usage{TotalAllocated: group.Total, Capacity: avail}
		if !usage.OverCommitted() {
			continue
		}
		conflict := types.Conflict{
			ResourceID:     r.ID,
			ResourceName:   r.Name,
			TotalAllocated: group.Total,
			Capacity:       avail,
			Allocations:    make([]types.ConflictAllocation, 0, len(group.Allocations)),
		}
		for _, a := range group.Allocations {
			conflict.Allocations = append(conflict.Allocations, types.ConflictAllocation{
				ProjectName:          projectNames[a.ProjectID],
				AllocationPercentage: a.Percentage,
				StartDate:            a.StartDate,
				EndDate:              a.EndDate,
			})
		}
		out = append(out, conflict)
	}
	return out
}

// Pass-through reads and writes for the supporting resources.

// CreateProject persists a new project.
func (s *Service) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = "Active"
	}
	return s.store.CreateProject(ctx, p)
}

// GetProject loads a project.
func (s *Service) GetProject(ctx context.Context, id string) (model.Project, error) {
	return s.store.GetProject(ctx, id)
}

// ListProjects returns all projects.
func (s *Service) ListProjects(ctx context.Context) ([]model.Project, error) {
	return s.store.ListProjects(ctx)
}

// CreateSprint persists a new sprint. Its date range must not overlap
// any existing sprint in the same project; boundaries count as overlap.
func (s *Service) CreateSprint(ctx context.Context, sp model.Sprint) (model.Sprint, error) {
	if sp.EndDate.Before(sp.StartDate) {
		return model.Sprint{}, &scoring.ValidationError{Fields: []string{"endDate"}}
	}
	if sp.SprintType == "" {
		sp.SprintType = model.SprintDelivery
	}
	if !sp.SprintType.Valid() {
		return model.Sprint{}, &scoring.ValidationError{Fields: []string{"sprintType"}}
	}
	if _, err := s.store.GetProject(ctx, sp.ProjectID); err != nil {
		return model.Sprint{}, err
	}
	siblings, err := s.store.ListSprints(ctx, sp.ProjectID)
	if err != nil {
		return model.Sprint{}, err
	}
	for _, other := range siblings {
		if capacity.Overlaps(sp.StartDate, sp.EndDate, other.StartDate, other.EndDate) {
			return model.Sprint{}, fmt.Errorf("dates overlap sprint %d: %w",
				other.SprintNumber, repository.ErrConflict)
		}
	}
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	if sp.GoalAchievement == "" {
		sp.GoalAchievement = model.GoalAchieved
	}
	if sp.OverallOutcome == "" {
		sp.OverallOutcome = model.OutcomeSuccess
	}
	if sp.FailureReasons == nil {
		sp.FailureReasons = []string{}
	}
	sp.StartDate = sp.StartDate.UTC()
	sp.EndDate = sp.EndDate.UTC()
	return s.store.CreateSprint(ctx, sp)
}

// GetSprint loads a sprint.
func (s *Service) GetSprint(ctx context.Context, id string) (model.Sprint, error) {
	return s.store.GetSprint(ctx, id)
}

// ListSprints returns a project's sprints.
func (s *Service) ListSprints(ctx context.Context, projectID string) ([]model.Sprint, error) {
	return s.store.ListSprints(ctx, projectID)
}

// CreateResource persists a new resource.
func (s *Service) CreateResource(ctx context.Context, r model.Resource) (model.Resource, error) {
	if r.EmploymentType == "" {
		r.EmploymentType = model.EmploymentFullTime
	}
	if !r.EmploymentType.Valid() {
		return model.Resource{}, &scoring.ValidationError{Fields: []string{"employmentType"}}
	}
	if r.Availability < 0 || r.Availability > capacity.DefaultCapacity {
		return model.Resource{}, &scoring.ValidationError{Fields: []string{"availabilityPercentage"}}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Availability == 0 {
		r.Availability = capacity.DefaultCapacity
	}
	return s.store.CreateResource(ctx, r)
}

// GetResource loads a resource.
func (s *Service) GetResource(ctx context.Context, id string) (model.Resource, error) {
	return s.store.GetResource(ctx, id)
}

// ListResources returns all resources.
func (s *Service) ListResources(ctx context.Context) ([]model.Resource, error) {
	return s.store.ListResources(ctx)
}

// CreateUser persists a new user.
func (s *Service) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.Role == "" {
		u.Role = model.RoleMember
	}
	if !u.Role.Valid() {
		return model.User{}, &scoring.ValidationError{Fields: []string{"role"}}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return s.store.CreateUser(ctx, u)
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.store.ListUsers(ctx)
}

// ListAlertsForUser returns a user's alerts, newest first.
func (s *Service) ListAlertsForUser(ctx context.Context, userID string) ([]model.Alert, error) {
	return s.store.ListAlertsForUser(ctx, userID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"atRiskStreak": s.atRiskStreak,
		"cacheEnabled": s.cache != nil,
	}

	if s.started && s.alertQueue != nil {
		stats["alertQueueLength"] = s.alertQueue.Len(context.Background())
	}

	return stats
}
