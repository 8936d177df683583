package suppress

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestGuard(t *testing.T) {
	Convey("Given a suppression guard", t, func() {
		ctx := context.Background()

		Convey("a key is suppressed on the second sighting", func() {
			g := NewInMemoryGuard()
			So(g.SeenAndRecord(ctx, "sprint_at_risk:p1"), ShouldBeFalse)
			So(g.SeenAndRecord(ctx, "sprint_at_risk:p1"), ShouldBeTrue)
			So(g.SeenAndRecord(ctx, "sprint_at_risk:p2"), ShouldBeFalse)
		})

		Convey("keys expire after the TTL", func() {
			now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
			clock := func() time.Time { return now }
			g := NewInMemoryGuard(WithTTL(time.Hour), WithClock(clock))

			So(g.SeenAndRecord(ctx, "k"), ShouldBeFalse)
			now = now.Add(59 * time.Minute)
			So(g.SeenAndRecord(ctx, "k"), ShouldBeTrue)
			now = now.Add(2 * time.Minute)
			So(g.SeenAndRecord(ctx, "k"), ShouldBeFalse)
		})

		Convey("Unrecord lets the key fire again immediately", func() {
			g := NewInMemoryGuard()
			So(g.SeenAndRecord(ctx, "k"), ShouldBeFalse)
			g.Unrecord(ctx, "k")
			So(g.SeenAndRecord(ctx, "k"), ShouldBeFalse)
		})

		Convey("the sweep drops expired entries once the map is full", func() {
			now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
			clock := func() time.Time { return now }
			g := NewInMemoryGuard(WithTTL(time.Minute), WithMaxSize(2), WithClock(clock))

			So(g.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			So(g.SeenAndRecord(ctx, "b"), ShouldBeFalse)
			So(g.Size(), ShouldEqual, 2)

			now = now.Add(2 * time.Minute)
			So(g.SeenAndRecord(ctx, "c"), ShouldBeFalse)
			So(g.Size(), ShouldEqual, 1)
		})
	})
}
