package server

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/KazDragon/munin-acceptance/internal/client"
)

func TestRegistry(t *testing.T) {
	Convey("with a fresh registry", t, func() {
		r := newRegistry()

		Convey("tracking admits a connection as pending", func() {
			id := r.track(nil)
			So(r.entries, ShouldContainKey, id)
			So(r.pending, ShouldContainKey, id)
			So(r.sizes, ShouldNotContainKey, id)
		})

		Convey("ids increase and are never reused", func() {
			a := r.track(nil)
			b := r.track(nil)
			So(b, ShouldEqual, a+1)
			r.remove(b)
			So(r.track(nil), ShouldEqual, b+1)
		})

		Convey("lookups for ids never tracked are stray", func() {
			So(r.settle(99), ShouldBeFalse)
			So(r.noteSize(99, 80, 24), ShouldBeFalse)
			So(r.attach(99, nil), ShouldBeFalse)
			_, ok := r.remove(99)
			So(ok, ShouldBeFalse)
		})

		Convey("with one pending connection", func() {
			id := r.track(nil)

			Convey("attach binds the client while tracked", func() {
				cl := &client.Client{}
				So(r.attach(id, cl), ShouldBeTrue)
				So(r.entries[id].cl, ShouldEqual, cl)
			})

			Convey("a size report while pending is recorded", func() {
				So(r.noteSize(id, 100, 40), ShouldBeTrue)
				So(r.sizes[id], ShouldResemble, windowSize{100, 40})

				Convey("and the last report wins", func() {
					So(r.noteSize(id, 120, 50), ShouldBeTrue)
					So(r.sizes[id], ShouldResemble, windowSize{120, 50})
				})

				Convey("and settling discards the interim size", func() {
					So(r.settle(id), ShouldBeTrue)
					So(r.pending, ShouldNotContainKey, id)
					So(r.sizes, ShouldNotContainKey, id)
					So(r.entries, ShouldContainKey, id)
				})
			})

			Convey("settling twice keeps the id routable", func() {
				So(r.settle(id), ShouldBeTrue)
				So(r.settle(id), ShouldBeTrue)
			})

			Convey("a size report after settling routes without being recorded", func() {
				So(r.settle(id), ShouldBeTrue)
				So(r.noteSize(id, 80, 24), ShouldBeTrue)
				So(r.sizes, ShouldBeEmpty)
			})

			Convey("removal forgets everything", func() {
				r.noteSize(id, 100, 40)
				e, ok := r.remove(id)
				So(ok, ShouldBeTrue)
				So(e, ShouldNotBeNil)
				So(r.entries, ShouldBeEmpty)
				So(r.pending, ShouldBeEmpty)
				So(r.sizes, ShouldBeEmpty)

				Convey("and every later lookup is stray", func() {
					So(r.settle(id), ShouldBeFalse)
					So(r.noteSize(id, 1, 1), ShouldBeFalse)
					So(r.attach(id, nil), ShouldBeFalse)
					_, ok := r.remove(id)
					So(ok, ShouldBeFalse)
				})
			})
		})

		Convey("every recorded size belongs to a pending connection", func() {
			a := r.track(nil)
			b := r.track(nil)
			r.noteSize(a, 10, 10)
			r.noteSize(b, 20, 20)
			r.settle(a)
			for id := range r.sizes {
				So(r.pending, ShouldContainKey, id)
			}
			r.remove(b)
			So(r.sizes, ShouldBeEmpty)
		})

		Convey("snapshot copies out every live entry", func() {
			r.track(nil)
			r.track(nil)
			So(r.snapshot(), ShouldHaveLength, 2)
			r.remove(1)
			So(r.snapshot(), ShouldHaveLength, 1)
		})
	})
}
