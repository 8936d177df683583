package seeder

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridianhq/pulse/pkg/logger"
)

// Run executes a complete seeding pass against a running service.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting seeding run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("projects", config.Projects),
		logger.Int("sprintsPerProject", config.SprintsPerProject),
		logger.Int("resources", config.Resources),
		logger.Int("workers", config.Workers))

	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	client := newHTTPClient(config.Timeout, config.Token)

	if err := createUsers(ctx, client, config); err != nil {
		return fmt.Errorf("user creation failed: %w", err)
	}

	resources, err := createResources(ctx, client, config, stats)
	if err != nil {
		return fmt.Errorf("resource creation failed: %w", err)
	}

	projects, err := populateProjects(ctx, client, config, stats)
	if err != nil {
		return fmt.Errorf("project population failed: %w", err)
	}

	if err := createAllocations(ctx, client, config, projects, resources, stats); err != nil {
		return fmt.Errorf("allocation creation failed: %w", err)
	}

	if err := verifyResults(ctx, client, config, projects, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	return nil
}

// createUsers seeds one manager per managerial role so alert fan-out has
// recipients.
func createUsers(ctx context.Context, client *HTTPClient, config *Config) error {
	users := []map[string]string{
		{"name": "Priya Nair", "email": "priya.nair@example.com", "role": "PM"},
		{"name": "Sam Okafor", "email": "sam.okafor@example.com", "role": "Admin"},
	}
	for _, u := range users {
		status, err := client.PostJSON(ctx, config.BaseURL+"/users", u, nil)
		if err != nil {
			return err
		}
		// Conflicts mean a previous run already seeded this user.
		if status != http.StatusCreated && status != http.StatusConflict {
			return fmt.Errorf("creating user %s: status %d", u["email"], status)
		}
	}
	return nil
}

// createResources creates the configured number of resources concurrently.
func createResources(ctx context.Context, client *HTTPClient, config *Config, stats *Stats) ([]createdResource, error) {
	resources := make([]createdResource, config.Resources)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for i := 0; i < config.Resources; i++ {
		g.Go(func() error {
			body := map[string]interface{}{
				"name":           resourceName(i),
				"role":           pick(resourceRoles),
				"employmentType": "FullTime",
			}
			var created createdResource
			status, err := client.PostJSON(gctx, config.BaseURL+"/resources", body, &created)
			if err != nil {
				return err
			}
			if status != http.StatusCreated {
				return fmt.Errorf("creating resource %d: status %d", i, status)
			}
			resources[i] = created
			atomic.AddInt64(&stats.ResourcesCreated, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resources, nil
}

// populateProjects creates each project with its sprints and a health
// record per sprint. Sprints within a project are sequential so streaks
// and trends come out coherent; projects run concurrently.
func populateProjects(ctx context.Context, client *HTTPClient, config *Config, stats *Stats) ([]createdProject, error) {
	projects := make([]createdProject, config.Projects)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for i := 0; i < config.Projects; i++ {
		g.Go(func() error {
			var project createdProject
			status, err := client.PostJSON(gctx, config.BaseURL+"/projects",
				map[string]string{"name": projectName(i), "client": "Internal"}, &project)
			if err != nil {
				return err
			}
			if status != http.StatusCreated {
				return fmt.Errorf("creating project %d: status %d", i, status)
			}
			projects[i] = project
			atomic.AddInt64(&stats.ProjectsCreated, 1)

			for n := 1; n <= config.SprintsPerProject; n++ {
				if err := seedSprint(gctx, client, config, project, n, stats); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return projects, nil
}

func seedSprint(ctx context.Context, client *HTTPClient, config *Config, project createdProject, n int, stats *Stats) error {
	start, end := sprintDates(config.SprintsPerProject, n)
	var sprint createdSprint
	status, err := client.PostJSON(ctx, config.BaseURL+"/projects/"+project.ID+"/sprints",
		map[string]interface{}{
			"sprintNumber": n,
			"startDate":    start,
			"endDate":      end,
			"sprintGoal":   pick(sprintGoals),
		}, &sprint)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("creating sprint %d for %s: status %d", n, project.Name, status)
	}
	atomic.AddInt64(&stats.SprintsCreated, 1)

	outcome := randomOutcome()
	body := map[string]interface{}{
		"dimensions":     randomDimensions(outcome),
		"overallOutcome": string(outcome),
	}
	status, err = client.PostJSON(ctx, config.BaseURL+"/sprints/"+sprint.ID+"/health", body, nil)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		atomic.AddInt64(&stats.HealthFailed, 1)
		if config.Verbose {
			logger.Get().Warn(ctx, "health submission rejected",
				logger.String("sprintID", sprint.ID), logger.Int("status", status))
		}
		return nil
	}
	atomic.AddInt64(&stats.HealthSubmitted, 1)
	return nil
}

// createAllocations spreads every resource over two random projects with
// overlapping date ranges. Some combinations exceed capacity on purpose;
// the service is expected to reject those.
func createAllocations(ctx context.Context, client *HTTPClient, config *Config, projects []createdProject, resources []createdResource, stats *Stats) error {
	if len(projects) == 0 || len(resources) == 0 {
		return nil
	}

	start := time.Now().UTC().Format("2006-01-02")
	end := time.Now().UTC().AddDate(0, 0, sprintLengthDays).Format("2006-01-02")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for _, res := range resources {
		g.Go(func() error {
			for i := 0; i < 2; i++ {
				body := map[string]interface{}{
					"resourceId":           res.ID,
					"projectId":            projects[randomInt(len(projects))].ID,
					"allocationPercentage": float64(30 + randomInt(5)*10),
					"startDate":            start,
					"endDate":              end,
				}
				status, err := client.PostJSON(gctx, config.BaseURL+"/allocations", body, nil)
				if err != nil {
					return err
				}
				switch status {
				case http.StatusCreated:
					atomic.AddInt64(&stats.AllocationsCreated, 1)
				case http.StatusBadRequest:
					atomic.AddInt64(&stats.AllocationsBlocked, 1)
				default:
					return fmt.Errorf("creating allocation for %s: status %d", res.Name, status)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// displayFinalStats logs the run summary.
func displayFinalStats(ctx context.Context, stats *Stats) {
	logger.Get().Info(ctx, "seeding run complete",
		logger.Int("projects", int(stats.ProjectsCreated)),
		logger.Int("sprints", int(stats.SprintsCreated)),
		logger.Int("resources", int(stats.ResourcesCreated)),
		logger.Int("healthRecords", int(stats.HealthSubmitted)),
		logger.Int("healthFailed", int(stats.HealthFailed)),
		logger.Int("allocations", int(stats.AllocationsCreated)),
		logger.Int("allocationsBlocked", int(stats.AllocationsBlocked)),
		logger.Int("conflictsReported", stats.ConflictsReported),
		logger.String("duration", stats.Duration.String()))
}
