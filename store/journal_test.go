package store

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CodedInternet/sentrygun/onboard"
	"github.com/CodedInternet/sentrygun/onboard/hardware"
	"github.com/asdine/storm/v3"
	. "github.com/smartystreets/goconvey/convey"
)

func TestJournal(t *testing.T) {
	Convey("Given a fresh database", t, func() {
		dir, err := ioutil.TempDir("", "sentrygun-store")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		db, err := storm.Open(filepath.Join(dir, "test.db"))
		So(err, ShouldBeNil)
		defer func() { db.Close() }()

		journal, err := NewJournal(db)
		So(err, ShouldBeNil)

		Convey("there is no last state", func() {
			_, ok, err := journal.LastState()
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("the latest state wins", func() {
			So(journal.RecordState(hardware.TurretState{Pan: 10, Tilt: 20}), ShouldBeNil)
			So(journal.RecordState(hardware.TurretState{Pan: 30, Tilt: 40, Rev: true, ScanDirection: -1}), ShouldBeNil)

			state, ok, err := journal.LastState()
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(state.Pan, ShouldEqual, 30)
			So(state.Tilt, ShouldEqual, 40)
			So(state.Rev, ShouldBeTrue)
			So(state.ScanDirection, ShouldEqual, -1)
		})

		Convey("a reload in progress keeps its restore tilt", func() {
			So(journal.RecordState(hardware.TurretState{Pan: 30, Tilt: 25, Reloading: true, RestoreTilt: 150}), ShouldBeNil)

			state, ok, err := journal.LastState()
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(state.Reloading, ShouldBeTrue)
			So(state.RestoreTilt, ShouldEqual, 150)
		})

		Convey("shots come back newest first", func() {
			start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				So(journal.RecordShot(onboard.Shot{At: start.Add(time.Duration(i) * time.Second), Pan: i, Tilt: 100}), ShouldBeNil)
			}

			count, err := journal.ShotCount()
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 5)

			shots, err := journal.Shots(2)
			So(err, ShouldBeNil)
			So(shots, ShouldHaveLength, 2)
			So(shots[0].Pan, ShouldEqual, 4)
			So(shots[1].Pan, ShouldEqual, 3)
			So(shots[0].At.Equal(start.Add(4*time.Second)), ShouldBeTrue)

			all, err := journal.Shots(0)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 5)
		})

		Convey("the journal survives a reopen", func() {
			So(journal.RecordState(hardware.TurretState{Pan: 77, Tilt: 66}), ShouldBeNil)
			So(db.Close(), ShouldBeNil)

			db, err = storm.Open(filepath.Join(dir, "test.db"))
			So(err, ShouldBeNil)

			journal, err = NewJournal(db)
			So(err, ShouldBeNil)

			state, ok, err := journal.LastState()
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(state.Pan, ShouldEqual, 77)
		})
	})
}
