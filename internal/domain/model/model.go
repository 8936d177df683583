// Package model contains domain models passed between layers.
package model

import "time"

// Outcome is the overall outcome recorded for a sprint.
type Outcome string

// Sprint outcomes.
const (
	OutcomeSuccess Outcome = "Success"
	OutcomeAtRisk  Outcome = "AtRisk"
	OutcomeFailure Outcome = "Failure"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeAtRisk, OutcomeFailure:
		return true
	}
	return false
}

// RAGStatus is the three-tier health classification derived from a score.
type RAGStatus string

// RAG statuses.
const (
	RAGRed   RAGStatus = "Red"
	RAGAmber RAGStatus = "Amber"
	RAGGreen RAGStatus = "Green"
)

// TrendDirection describes how a sprint's health score moved relative to
// the previous sprint.
type TrendDirection string

// Trend directions.
const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
	TrendNew       TrendDirection = "new"
)

// GoalAchievement captures how much of the sprint goal was delivered.
type GoalAchievement string

// Goal achievement levels.
const (
	GoalAchieved          GoalAchievement = "Achieved"
	GoalPartiallyAchieved GoalAchievement = "PartiallyAchieved"
	GoalNotAchieved       GoalAchievement = "NotAchieved"
)

// Valid reports whether g is a known achievement level.
func (g GoalAchievement) Valid() bool {
	switch g {
	case GoalAchieved, GoalPartiallyAchieved, GoalNotAchieved:
		return true
	}
	return false
}

// SprintType classifies the nature of a sprint.
type SprintType string

// Sprint types.
const (
	SprintDelivery  SprintType = "Delivery"
	SprintHardening SprintType = "Hardening"
	SprintDiscovery SprintType = "Discovery"
)

// Valid reports whether t is a known sprint type.
func (t SprintType) Valid() bool {
	switch t {
	case SprintDelivery, SprintHardening, SprintDiscovery:
		return true
	}
	return false
}

// EmploymentType classifies a resource's engagement.
type EmploymentType string

// Employment types.
const (
	EmploymentFullTime   EmploymentType = "FullTime"
	EmploymentPartTime   EmploymentType = "PartTime"
	EmploymentContractor EmploymentType = "Contractor"
)

// Valid reports whether t is a known employment type.
func (t EmploymentType) Valid() bool {
	switch t {
	case EmploymentFullTime, EmploymentPartTime, EmploymentContractor:
		return true
	}
	return false
}

// Role is a user's role in the system. Managerial roles receive alerts.
type Role string

// User roles.
const (
	RoleAdmin  Role = "Admin"
	RolePM     Role = "PM"
	RoleMember Role = "Member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePM, RoleMember:
		return true
	}
	return false
}

// ManagerialRoles lists the roles that receive broadcast alerts.
func ManagerialRoles() []Role {
	return []Role{RolePM, RoleAdmin}
}

// AlertType names a class of alert.
type AlertType string

// Alert classes.
const (
	AlertSprintFailure  AlertType = "sprint_failure"
	AlertSprintAtRisk   AlertType = "sprint_at_risk"
	AlertOverAllocation AlertType = "over_allocation"
)

// Severity grades an alert.
type Severity string

// Alert severities.
const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Project is a client engagement that sprints and allocations hang off.
type Project struct {
	ID        string
	Name      string
	Client    string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is an account that can hold a role and receive alerts.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	CreatedAt time.Time
}

// Sprint is a time-boxed iteration within a project. The overall outcome
// lives here, not on the health record, and is read by the scorer as an
// explicit input.
type Sprint struct {
	ID              string
	ProjectID       string
	SprintNumber    int
	StartDate       time.Time
	EndDate         time.Time
	SprintGoal      string
	SprintType      SprintType
	GoalAchievement GoalAchievement
	OverallOutcome  Outcome
	FailureReasons  []string
	Comments        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SprintHealth is the per-sprint health assessment. Score and RAG status
// are always derived from the seven dimension ratings plus the sprint
// outcome, never written independently.
type SprintHealth struct {
	ID           string
	SprintID     string
	Dimensions   DimensionSet
	OverallScore float64
	RAGStatus    RAGStatus
	CreatedBy    string
	UpdatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Resource is a person (or seat) that can be allocated to projects.
type Resource struct {
	ID             string
	Name           string
	Role           string
	EmploymentType EmploymentType
	Availability   float64 // capacity as a percentage, 0..100
	CostRate       float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Allocation commits a percentage of a resource to a project over a
// date range. endDate >= startDate always holds.
type Allocation struct {
	ID         string
	ResourceID string
	ProjectID  string
	SprintID   string // optional
	Percentage float64
	StartDate  time.Time
	EndDate    time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Alert is a persisted notification addressed to a single user.
type Alert struct {
	ID         string
	Type       AlertType
	Message    string
	Severity   Severity
	UserID     string
	ProjectID  string
	SprintID   string
	ResourceID string
	Metadata   map[string]any
	CreatedAt  time.Time
}
