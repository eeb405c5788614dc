package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/physiopulse/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryTracker(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new tracker", t, func() {
		tr := dedupe.NewInMemoryTracker()
		So(tr.Size(), ShouldEqual, 0)

		Convey("When a key is claimed for the first time", func() {
			id, dup := tr.Claim(ctx, "req-1", "analysis-a")

			Convey("Then it is bound to the given analysis", func() {
				So(dup, ShouldBeFalse)
				So(id, ShouldEqual, "analysis-a")
				So(tr.Size(), ShouldEqual, 1)
			})

			Convey("And the same key is claimed again", func() {
				id, dup := tr.Claim(ctx, "req-1", "analysis-b")

				Convey("Then the original analysis is returned", func() {
					So(dup, ShouldBeTrue)
					So(id, ShouldEqual, "analysis-a")
					So(tr.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the key is released by its owner", func() {
				tr.Release(ctx, "req-1", "analysis-a")
				id, dup := tr.Claim(ctx, "req-1", "analysis-c")

				Convey("Then it can be claimed afresh", func() {
					So(dup, ShouldBeFalse)
					So(id, ShouldEqual, "analysis-c")
				})
			})

			Convey("And a stale owner tries to release it", func() {
				tr.Release(ctx, "req-1", "analysis-z")

				Convey("Then the binding survives", func() {
					id, dup := tr.Claim(ctx, "req-1", "analysis-d")
					So(dup, ShouldBeTrue)
					So(id, ShouldEqual, "analysis-a")
				})
			})
		})
	})

	Convey("Given a bounded tracker", t, func() {
		tr := dedupe.NewInMemoryTracker(dedupe.WithMaxSize(2))
		tr.Claim(ctx, "k1", "a1")
		tr.Claim(ctx, "k2", "a2")
		tr.Claim(ctx, "k3", "a3")

		Convey("Then the oldest key is evicted", func() {
			So(tr.Size(), ShouldEqual, 2)
			_, dup := tr.Claim(ctx, "k1", "a4")
			So(dup, ShouldBeFalse)
			_, dup = tr.Claim(ctx, "k3", "a5")
			So(dup, ShouldBeTrue)
		})
	})

	Convey("Given an unbounded tracker", t, func() {
		tr := dedupe.NewInMemoryTracker(dedupe.WithMaxSize(0))
		for i := 0; i < 100; i++ {
			tr.Claim(ctx, fmt.Sprintf("k%d", i), "a")
		}
		So(tr.Size(), ShouldEqual, 100)
	})

	Convey("Given concurrent claims of one key", t, func() {
		tr := dedupe.NewInMemoryTracker()
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, dup := tr.Claim(ctx, "shared", fmt.Sprintf("a%d", i)); !dup {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one claim wins", func() {
			So(fresh, ShouldEqual, 1)
			So(tr.Size(), ShouldEqual, 1)
		})
	})
}
