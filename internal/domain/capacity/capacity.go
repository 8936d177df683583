// Package capacity defines the pure arithmetic behind allocation conflict
// detection: date-range overlap, committed-percentage totals, and the
// exact-range grouping used by the batch conflict report.
package capacity

import (
	"sort"
	"time"

	"github.com/meridianhq/pulse/internal/domain/model"
)

// DefaultCapacity is assumed when a resource has no availability set.
const DefaultCapacity = 100.0

// Overlaps reports whether [s1,e1] and [s2,e2] overlap. Boundaries are
// inclusive: ranges that touch on a single day overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return !s1.After(e2) && !s2.After(e1)
}

// Candidate describes an allocation write being checked. ExcludeID is the
// allocation's own ID on update, so its stored row never counts against
// itself.
type Candidate struct {
	Percentage float64
	StartDate  time.Time
	EndDate    time.Time
	ExcludeID  string
}

// Usage is the outcome of a capacity check.
type Usage struct {
	TotalAllocated float64 `json:"totalAllocated"`
	Capacity       float64 `json:"capacity"`
}

// OverCommitted reports whether the total exceeds capacity. Exactly full
// commitment is allowed.
func (u Usage) OverCommitted() bool {
	return u.TotalAllocated > u.Capacity
}

// Evaluate sums the percentages of the resource's allocations whose ranges
// overlap the candidate range, adds the candidate's own percentage, and
// compares against capacity. Allocations matching ExcludeID are skipped.
func Evaluate(c Candidate, existing []model.Allocation, capacity float64) Usage {
	total := c.Percentage
	for _, a := range existing {
		if c.ExcludeID != "" && a.ID == c.ExcludeID {
			continue
		}
		if Overlaps(a.StartDate, a.EndDate, c.StartDate, c.EndDate) {
			total += a.Percentage
		}
	}
	return Usage{TotalAllocated: total, Capacity: capacity}
}

// Group is a set of allocations sharing an identical date range.
type Group struct {
	StartDate   time.Time
	EndDate     time.Time
	Total       float64
	Allocations []model.Allocation
}

// GroupExactRanges buckets allocations by exact (startDate, endDate) pair.
// This is deliberately narrower than Overlaps: the batch conflict report
// only flags identical ranges, while the write-time check considers any
// overlap. Groups come back ordered by start then end date.
func GroupExactRanges(allocs []model.Allocation) []Group {
	type key struct{ start, end string }
	buckets := make(map[key]*Group)
	var order []key

	for _, a := range allocs {
		k := key{a.StartDate.Format(time.RFC3339), a.EndDate.Format(time.RFC3339)}
		g, ok := buckets[k]
		if !ok {
			g = &Group{StartDate: a.StartDate, EndDate: a.EndDate}
			buckets[k] = g
			order = append(order, k)
		}
		g.Total += a.Percentage
		g.Allocations = append(g.Allocations, a)
	}

	groups := make([]Group, 0, len(order))
	for _, k := range order {
		groups = append(groups, *buckets[k])
	}
	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].StartDate.Equal(groups[j].StartDate) {
			return groups[i].StartDate.Before(groups[j].StartDate)
		}
		return groups[i].EndDate.Before(groups[j].EndDate)
	})
	return groups
}
