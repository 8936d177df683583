package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/meridianhq/pulse/internal/domain/capacity"
	"github.com/meridianhq/pulse/internal/domain/model"
	"github.com/meridianhq/pulse/internal/domain/types"
	"github.com/meridianhq/pulse/pkg/metrics"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is the storage format for all timestamps and dates. RFC3339
// UTC strings compare lexically in the same order as the instants they
// encode, which the overlap SQL relies on.
const timeLayout = time.RFC3339

// SQLiteStore implements Store over a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db and applies pending schema migrations.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrateUp(); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func observeRead(start time.Time) {
	metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func observeWrite(start time.Time) {
	metrics.RecordStoreWriteLatency(float64(time.Since(start).Microseconds()) / 1000)
}

// Projects.

// CreateProject persists a new project.
func (s *SQLiteStore) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	defer observeWrite(time.Now())

	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, client, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Client, p.Status, fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt))
	if err != nil {
		return model.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

// GetProject loads a project by ID.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (model.Project, error) {
	defer observeRead(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, client, status, created_at, updated_at FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// ListProjects returns all projects ordered by name.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	defer observeRead(time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, client, status, created_at, updated_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// execer is satisfied by *sql.DB and *sql.Tx, letting the write helpers
// run standalone or inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanProject(row scanner) (model.Project, error) {
	var p model.Project
	var created, updated string
	if err := row.Scan(&p.ID, &p.Name, &p.Client, &p.Status, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Project{}, ErrNotFound
		}
		return model.Project{}, fmt.Errorf("scan project: %w", err)
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return model.Project{}, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return model.Project{}, err
	}
	return p, nil
}

// Users.

// CreateUser persists a new user. Duplicate emails surface as ErrConflict.
func (s *SQLiteStore) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	defer observeWrite(time.Now())

	u.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, string(u.Role), fmtTime(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, ErrConflict
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// ListUsers returns all users ordered by name.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.queryUsers(ctx, `SELECT id, name, email, role, created_at FROM users ORDER BY name`)
}

// ListUsersByRole returns users holding any of the given roles.
func (s *SQLiteStore) ListUsersByRole(ctx context.Context, roles ...model.Role) ([]model.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?, ", len(roles)-1) + "?"
	args := make([]any, len(roles))
	for i, r := range roles {
		args[i] = string(r)
	}
	query := fmt.Sprintf(
		`SELECT id, name, email, role, created_at FROM users WHERE role IN (%s) ORDER BY name`, placeholders)
	return s.queryUsers(ctx, query, args...)
}

func (s *SQLiteStore) queryUsers(ctx context.Context, query string, args ...any) ([]model.User, error) {
	defer observeRead(time.Now())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		var role, created string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role, &created); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = model.Role(role)
		if u.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Sprints.

const sprintColumns = `id, project_id, sprint_number, start_date, end_date, sprint_goal, sprint_type,
	goal_achievement, overall_outcome, failure_reasons, comments, created_at, updated_at`

// CreateSprint persists a new sprint. A duplicate sprint number within the
// project surfaces as ErrConflict.
func (s *SQLiteStore) CreateSprint(ctx context.Context, sp model.Sprint) (model.Sprint, error) {
	defer observeWrite(time.Now())

	now := time.Now().UTC()
	sp.CreatedAt, sp.UpdatedAt = now, now
	reasons, err := json.Marshal(sp.FailureReasons)
	if err != nil {
		return model.Sprint{}, fmt.Errorf("encode failure reasons: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sprints (`+sprintColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.ProjectID, sp.SprintNumber, fmtTime(sp.StartDate), fmtTime(sp.EndDate),
		sp.SprintGoal, string(sp.SprintType), string(sp.GoalAchievement), string(sp.OverallOutcome),
		string(reasons), sp.Comments, fmtTime(sp.CreatedAt), fmtTime(sp.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Sprint{}, ErrConflict
		}
		return model.Sprint{}, fmt.Errorf("insert sprint: %w", err)
	}
	return sp, nil
}

// GetSprint loads a sprint by ID.
func (s *SQLiteStore) GetSprint(ctx context.Context, id string) (model.Sprint, error) {
	defer observeRead(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+sprintColumns+` FROM sprints WHERE id = ?`, id)
	return scanSprint(row)
}

// GetSprintByNumber loads a sprint by its number within a project.
func (s *SQLiteStore) GetSprintByNumber(ctx context.Context, projectID string, number int) (model.Sprint, error) {
	defer observeRead(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+sprintColumns+` FROM sprints WHERE project_id = ? AND sprint_number = ?`, projectID, number)
	return scanSprint(row)
}

// ListSprints returns a project's sprints ordered by sprint number.
func (s *SQLiteStore) ListSprints(ctx context.Context, projectID string) ([]model.Sprint, error) {
	return s.querySprints(ctx,
		`SELECT `+sprintColumns+` FROM sprints WHERE project_id = ? ORDER BY sprint_number`, projectID)
}

// RecentSprints returns the project's most recent sprints by start date.
func (s *SQLiteStore) RecentSprints(ctx context.Context, projectID string, limit int) ([]model.Sprint, error) {
	return s.querySprints(ctx,
		`SELECT `+sprintColumns+` FROM sprints WHERE project_id = ? ORDER BY start_date DESC LIMIT ?`,
		projectID, limit)
}

func (s *SQLiteStore) querySprints(ctx context.Context, query string, args ...any) ([]model.Sprint, error) {
	defer observeRead(time.Now())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sprints: %w", err)
	}
	defer rows.Close()

	var out []model.Sprint
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func scanSprint(row scanner) (model.Sprint, error) {
	var sp model.Sprint
	var sprintType, goal, outcome, reasons string
	var start, end, created, updated string
	err := row.Scan(&sp.ID, &sp.ProjectID, &sp.SprintNumber, &start, &end, &sp.SprintGoal,
		&sprintType, &goal, &outcome, &reasons, &sp.Comments, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Sprint{}, ErrNotFound
		}
		return model.Sprint{}, fmt.Errorf("scan sprint: %w", err)
	}
	sp.SprintType = model.SprintType(sprintType)
	sp.GoalAchievement = model.GoalAchievement(goal)
	sp.OverallOutcome = model.Outcome(outcome)
	if err := json.Unmarshal([]byte(reasons), &sp.FailureReasons); err != nil {
		return model.Sprint{}, fmt.Errorf("decode failure reasons: %w", err)
	}
	for _, pair := range []struct {
		dst *time.Time
		src string
	}{{&sp.StartDate, start}, {&sp.EndDate, end}, {&sp.CreatedAt, created}, {&sp.UpdatedAt, updated}} {
		t, err := parseTime(pair.src)
		if err != nil {
			return model.Sprint{}, err
		}
		*pair.dst = t
	}
	return sp, nil
}

// UpdateSprintReview writes the review fields set in r onto the sprint.
func (s *SQLiteStore) UpdateSprintReview(ctx context.Context, r SprintReview) error {
	defer observeWrite(time.Now())

	return updateSprintReview(ctx, s.db, r)
}

func updateSprintReview(ctx context.Context, db execer, r SprintReview) error {
	sets := []string{"updated_at = ?"}
	args := []any{fmtTime(time.Now().UTC())}

	if r.GoalAchievement != nil {
		sets = append(sets, "goal_achievement = ?")
		args = append(args, string(*r.GoalAchievement))
	}
	if r.OverallOutcome != nil {
		sets = append(sets, "overall_outcome = ?")
		args = append(args, string(*r.OverallOutcome))
	}
	if r.FailureReasons != nil {
		encoded, err := json.Marshal(*r.FailureReasons)
		if err != nil {
			return fmt.Errorf("encode failure reasons: %w", err)
		}
		sets = append(sets, "failure_reasons = ?")
		args = append(args, string(encoded))
	}
	if r.Comments != nil {
		sets = append(sets, "comments = ?")
		args = append(args, *r.Comments)
	}

	args = append(args, r.SprintID)
	res, err := db.ExecContext(ctx,
		`UPDATE sprints SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update sprint review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sprint review: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Sprint health.

const healthColumns = `id, sprint_id,
	planning_rating, planning_comment, backlog_rating, backlog_comment,
	collaboration_rating, collaboration_comment, daily_scrum_rating, daily_scrum_comment,
	execution_rating, execution_comment, review_rating, review_comment,
	retrospective_rating, retrospective_comment,
	overall_health_score, rag_status, created_by, updated_by, created_at, updated_at`

// dimOrder fixes the column order used by healthColumns; it matches the
// canonical dimension order.
var dimOrder = model.Dimensions()

// CreateHealth persists a new health record. A second record for the same
// sprint surfaces as ErrConflict.
func (s *SQLiteStore) CreateHealth(ctx context.Context, h model.SprintHealth) (model.SprintHealth, error) {
	defer observeWrite(time.Now())

	return insertHealth(ctx, s.db, h)
}

// CreateHealthWithReview persists a sprint's first health record together
// with the review fields it carries, in a single transaction. A failed
// review write rolls the health record back.
func (s *SQLiteStore) CreateHealthWithReview(ctx context.Context, h model.SprintHealth, r SprintReview) (model.SprintHealth, error) {
	defer observeWrite(time.Now())

	var created model.SprintHealth
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if created, err = insertHealth(ctx, tx, h); err != nil {
			return err
		}
		return updateSprintReview(ctx, tx, r)
	})
	if err != nil {
		return model.SprintHealth{}, err
	}
	return created, nil
}

func insertHealth(ctx context.Context, db execer, h model.SprintHealth) (model.SprintHealth, error) {
	now := time.Now().UTC()
	h.CreatedAt, h.UpdatedAt = now, now

	args := []any{h.ID, h.SprintID}
	for _, dim := range dimOrder {
		r := h.Dimensions[dim]
		args = append(args, r.Rating, r.Comment)
	}
	args = append(args, h.OverallScore, string(h.RAGStatus), h.CreatedBy, h.UpdatedBy,
		fmtTime(h.CreatedAt), fmtTime(h.UpdatedAt))

	_, err := db.ExecContext(ctx,
		`INSERT INTO sprint_health (`+healthColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...)
	if err != nil {
		if isUniqueViolation(err) {
			return model.SprintHealth{}, ErrConflict
		}
		return model.SprintHealth{}, fmt.Errorf("insert sprint health: %w", err)
	}
	return h, nil
}

// GetHealthBySprint loads the health record for a sprint.
func (s *SQLiteStore) GetHealthBySprint(ctx context.Context, sprintID string) (model.SprintHealth, error) {
	defer observeRead(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+healthColumns+` FROM sprint_health WHERE sprint_id = ?`, sprintID)
	return scanHealth(row)
}

// UpdateHealth rewrites the dimensions and derived fields of an existing
// health record.
func (s *SQLiteStore) UpdateHealth(ctx context.Context, h model.SprintHealth) (model.SprintHealth, error) {
	defer observeWrite(time.Now())

	if err := updateHealth(ctx, s.db, h); err != nil {
		return model.SprintHealth{}, err
	}
	return s.GetHealthBySprint(ctx, h.SprintID)
}

// UpdateHealthWithReview rewrites an existing health record and the
// sprint's review fields in a single transaction.
func (s *SQLiteStore) UpdateHealthWithReview(ctx context.Context, h model.SprintHealth, r SprintReview) (model.SprintHealth, error) {
	defer observeWrite(time.Now())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateHealth(ctx, tx, h); err != nil {
			return err
		}
		return updateSprintReview(ctx, tx, r)
	})
	if err != nil {
		return model.SprintHealth{}, err
	}
	return s.GetHealthBySprint(ctx, h.SprintID)
}

func updateHealth(ctx context.Context, db execer, h model.SprintHealth) error {
	h.UpdatedAt = time.Now().UTC()

	var args []any
	for _, dim := range dimOrder {
		r := h.Dimensions[dim]
		args = append(args, r.Rating, r.Comment)
	}
	args = append(args, h.OverallScore, string(h.RAGStatus), h.UpdatedBy, fmtTime(h.UpdatedAt), h.SprintID)

	res, err := db.ExecContext(ctx, `UPDATE sprint_health SET
		planning_rating = ?, planning_comment = ?,
		backlog_rating = ?, backlog_comment = ?,
		collaboration_rating = ?, collaboration_comment = ?,
		daily_scrum_rating = ?, daily_scrum_comment = ?,
		execution_rating = ?, execution_comment = ?,
		review_rating = ?, review_comment = ?,
		retrospective_rating = ?, retrospective_comment = ?,
		overall_health_score = ?, rag_status = ?, updated_by = ?, updated_at = ?
		WHERE sprint_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update sprint health: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sprint health: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanHealth(row scanner) (model.SprintHealth, error) {
	var h model.SprintHealth
	var ratings [model.DimensionCount]int
	var comments [model.DimensionCount]string
	var rag, created, updated string

	args := []any{&h.ID, &h.SprintID}
	for i := range dimOrder {
		args = append(args, &ratings[i], &comments[i])
	}
	args = append(args, &h.OverallScore, &rag, &h.CreatedBy, &h.UpdatedBy, &created, &updated)

	if err := row.Scan(args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SprintHealth{}, ErrNotFound
		}
		return model.SprintHealth{}, fmt.Errorf("scan sprint health: %w", err)
	}

	h.Dimensions = make(model.DimensionSet, model.DimensionCount)
	for i, dim := range dimOrder {
		h.Dimensions[dim] = model.Rating{Rating: ratings[i], Comment: comments[i]}
	}
	h.RAGStatus = model.RAGStatus(rag)
	var err error
	if h.CreatedAt, err = parseTime(created); err != nil {
		return model.SprintHealth{}, err
	}
	if h.UpdatedAt, err = parseTime(updated); err != nil {
		return model.SprintHealth{}, err
	}
	return h, nil
}

// HealthHistory returns the project's health rows for sprints numbered up
// to and including uptoNumber, ordered by sprint number ascending.
func (s *SQLiteStore) HealthHistory(ctx context.Context, projectID string, uptoNumber int) ([]types.HistoryEntry, error) {
	defer observeRead(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT sp.sprint_number, h.overall_health_score, h.rag_status, sp.overall_outcome, h.created_at
		FROM sprint_health AS h
		JOIN sprints AS sp ON sp.id = h.sprint_id
		WHERE sp.project_id = ? AND sp.sprint_number <= ?
		ORDER BY sp.sprint_number`, projectID, uptoNumber)
	if err != nil {
		return nil, fmt.Errorf("query health history: %w", err)
	}
	defer rows.Close()

	var out []types.HistoryEntry
	for rows.Next() {
		var e types.HistoryEntry
		var rag, outcome, created string
		if err := rows.Scan(&e.SprintNumber, &e.OverallHealthScore, &rag, &outcome, &created); err != nil {
			return nil, fmt.Errorf("scan health history: %w", err)
		}
		e.RAGStatus = model.RAGStatus(rag)
		e.Outcome = model.Outcome(outcome)
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Resources.

const resourceColumns = `id, name, role, employment_type, availability_percentage, cost_rate, created_at, updated_at`

// CreateResource persists a new resource.
func (s *SQLiteStore) CreateResource(ctx context.Context, r model.Resource) (model.Resource, error) {
	defer observeWrite(time.Now())

	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resources (`+resourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Role, string(r.EmploymentType), r.Availability, r.CostRate,
		fmtTime(r.CreatedAt), fmtTime(r.UpdatedAt))
	if err != nil {
		return model.Resource{}, fmt.Errorf("insert resource: %w", err)
	}
	return r, nil
}

// GetResource loads a resource by ID.
func (s *SQLiteStore) GetResource(ctx context.Context, id string) (model.Resource, error) {
	defer observeRead(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	return scanResource(row)
}

// ListResources returns all resources ordered by name.
func (s *SQLiteStore) ListResources(ctx context.Context) ([]model.Resource, error) {
	defer observeRead(time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	var out []model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanResource(row scanner) (model.Resource, error) {
	var r model.Resource
	var employment, created, updated string
	if err := row.Scan(&r.ID, &r.Name, &r.Role, &employment, &r.Availability, &r.CostRate, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Resource{}, ErrNotFound
		}
		return model.Resource{}, fmt.Errorf("scan resource: %w", err)
	}
	r.EmploymentType = model.EmploymentType(employment)
	var err error
	if r.CreatedAt, err = parseTime(created); err != nil {
		return model.Resource{}, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return model.Resource{}, err
	}
	return r, nil
}

// Allocations.

const allocationColumns = `id, resource_id, project_id, sprint_id, allocation_percentage, start_date, end_date, created_at, updated_at`

// CreateAllocation checks the resource's committed capacity over the
// candidate range and inserts the allocation, all inside one transaction.
// Over-commitment surfaces as *capacity.Error and nothing is written.
func (s *SQLiteStore) CreateAllocation(ctx context.Context, a model.Allocation) (model.Allocation, error) {
	defer observeWrite(time.Now())

	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkCapacityTx(ctx, tx, a.ResourceID, "", a.Percentage, a.StartDate, a.EndDate); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO allocations (`+allocationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.ResourceID, a.ProjectID, a.SprintID, a.Percentage,
			fmtTime(a.StartDate), fmtTime(a.EndDate), fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert allocation: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Allocation{}, err
	}
	return a, nil
}

// UpdateAllocation rewrites an allocation after re-running the capacity
// check with the allocation's own stored row excluded from the sum.
func (s *SQLiteStore) UpdateAllocation(ctx context.Context, a model.Allocation) (model.Allocation, error) {
	defer observeWrite(time.Now())

	a.UpdatedAt = time.Now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkCapacityTx(ctx, tx, a.ResourceID, a.ID, a.Percentage, a.StartDate, a.EndDate); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE allocations SET
			allocation_percentage = ?, start_date = ?, end_date = ?, sprint_id = ?, updated_at = ?
			WHERE id = ?`,
			a.Percentage, fmtTime(a.StartDate), fmtTime(a.EndDate), a.SprintID, fmtTime(a.UpdatedAt), a.ID)
		if err != nil {
			return fmt.Errorf("update allocation: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update allocation: %w", err)
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return model.Allocation{}, err
	}
	return a, nil
}

// checkCapacityTx sums the percentages of the resource's allocations
// overlapping [start, end] (excluding excludeID) plus pct, and compares
// against the resource's availability. The overlap predicate matches
// capacity.Overlaps: boundaries are inclusive.
func checkCapacityTx(ctx context.Context, tx *sql.Tx, resourceID, excludeID string, pct float64, start, end time.Time) error {
	var avail float64
	err := tx.QueryRowContext(ctx,
		`SELECT availability_percentage FROM resources WHERE id = ?`, resourceID).Scan(&avail)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query resource capacity: %w", err)
	}
	var committed float64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(allocation_percentage), 0)
		FROM allocations
		WHERE resource_id = ? AND id <> ? AND start_date <= ? AND end_date >= ?`,
		resourceID, excludeID, fmtTime(end), fmtTime(start)).Scan(&committed)
	if err != nil {
		return fmt.Errorf("sum overlapping allocations: %w", err)
	}

	usage := capacity.Usage{TotalAllocated: committed + pct, Capacity: avail}
	if usage.OverCommitted() {
		return capacity.NewError(usage)
	}
	return nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetAllocation loads an allocation by ID.
func (s *SQLiteStore) GetAllocation(ctx context.Context, id string) (model.Allocation, error) {
	defer observeRead(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+allocationColumns+` FROM allocations WHERE id = ?`, id)
	return scanAllocation(row)
}

// DeleteAllocation removes an allocation.
func (s *SQLiteStore) DeleteAllocation(ctx context.Context, id string) error {
	defer observeWrite(time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM allocations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete allocation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete allocation: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAllocations returns allocations matching the filter, most recent
// start date first.
func (s *SQLiteStore) ListAllocations(ctx context.Context, f AllocationFilter) ([]model.Allocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM allocations`
	var conds []string
	var args []any
	if f.ResourceID != "" {
		conds = append(conds, "resource_id = ?")
		args = append(args, f.ResourceID)
	}
	if f.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_date DESC"
	return s.queryAllocations(ctx, query, args...)
}

// ListActiveAllocations returns a resource's allocations still running at
// or after asOf.
func (s *SQLiteStore) ListActiveAllocations(ctx context.Context, resourceID string, asOf time.Time) ([]model.Allocation, error) {
	return s.queryAllocations(ctx,
		`SELECT `+allocationColumns+` FROM allocations WHERE resource_id = ? AND end_date >= ? ORDER BY start_date`,
		resourceID, fmtTime(asOf))
}

func (s *SQLiteStore) queryAllocations(ctx context.Context, query string, args ...any) ([]model.Allocation, error) {
	defer observeRead(time.Now())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	var out []model.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAllocation(row scanner) (model.Allocation, error) {
	var a model.Allocation
	var start, end, created, updated string
	err := row.Scan(&a.ID, &a.ResourceID, &a.ProjectID, &a.SprintID, &a.Percentage, &start, &end, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Allocation{}, ErrNotFound
		}
		return model.Allocation{}, fmt.Errorf("scan allocation: %w", err)
	}
	for _, pair := range []struct {
		dst *time.Time
		src string
	}{{&a.StartDate, start}, {&a.EndDate, end}, {&a.CreatedAt, created}, {&a.UpdatedAt, updated}} {
		t, err := parseTime(pair.src)
		if err != nil {
			return model.Allocation{}, err
		}
		*pair.dst = t
	}
	return a, nil
}

// Alerts.

// InsertAlerts persists a batch of alerts in one transaction.
func (s *SQLiteStore) InsertAlerts(ctx context.Context, alerts []model.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	defer observeWrite(time.Now())

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO alerts
			(id, type, message, severity, user_id, project_id, sprint_id, resource_id, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare alert insert: %w", err)
		}
		defer stmt.Close()

		for _, a := range alerts {
			meta, err := json.Marshal(a.Metadata)
			if err != nil {
				return fmt.Errorf("encode alert metadata: %w", err)
			}
			if a.CreatedAt.IsZero() {
				a.CreatedAt = time.Now().UTC()
			}
			_, err = stmt.ExecContext(ctx, a.ID, string(a.Type), a.Message, string(a.Severity),
				a.UserID, a.ProjectID, a.SprintID, a.ResourceID, string(meta), fmtTime(a.CreatedAt))
			if err != nil {
				return fmt.Errorf("insert alert: %w", err)
			}
		}
		return nil
	})
}

// ListAlertsForUser returns a user's alerts, newest first.
func (s *SQLiteStore) ListAlertsForUser(ctx context.Context, userID string) ([]model.Alert, error) {
	defer observeRead(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, message, severity, user_id, project_id, sprint_id, resource_id, metadata, created_at
		FROM alerts WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var typ, severity, meta, created string
		if err := rows.Scan(&a.ID, &typ, &a.Message, &severity, &a.UserID, &a.ProjectID,
			&a.SprintID, &a.ResourceID, &meta, &created); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = model.AlertType(typ)
		a.Severity = model.Severity(severity)
		if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode alert metadata: %w", err)
		}
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecentAlertExists reports whether an alert of the given type exists for
// the project at or after since. It backs the rolling dedup window for
// consecutive at-risk notifications.
func (s *SQLiteStore) RecentAlertExists(ctx context.Context, typ model.AlertType, projectID string, since time.Time) (bool, error) {
	defer observeRead(time.Now())

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM alerts WHERE type = ? AND project_id = ? AND created_at >= ?`,
		string(typ), projectID, fmtTime(since)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query recent alerts: %w", err)
	}
	return count > 0, nil
}
