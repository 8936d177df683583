package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestThroughWithoutCache(t *testing.T) {
	Convey("Given no cache is configured", t, func() {
		ctx := context.Background()

		Convey("When reading through a nil cache", func() {
			calls := 0
			fetch := func(ctx context.Context) (int, error) {
				calls++
				return 42, nil
			}

			v, err := Through[int](ctx, nil, "key", time.Minute, fetch)

			Convey("Then the fetch runs directly", func() {
				So(err, ShouldBeNil)
				So(v, ShouldEqual, 42)
				So(calls, ShouldEqual, 1)
			})
		})

		Convey("When the fetch fails", func() {
			boom := errors.New("boom")
			_, err := Through[int](ctx, nil, "key", time.Minute, func(ctx context.Context) (int, error) {
				return 0, boom
			})

			Convey("Then the error propagates", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
			})
		})
	})
}
