package landmark

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestVocabulary(t *testing.T) {
	Convey("Given the landmark vocabulary", t, func() {
		Convey("Then ids and names round-trip", func() {
			for id, n := range Names() {
				got, ok := ID(n)
				So(ok, ShouldBeTrue)
				So(got, ShouldEqual, id)
			}
		})

		Convey("Then well known points sit at their engine ids", func() {
			n, _ := Name(0)
			So(n, ShouldEqual, "nose")
			n, _ = Name(11)
			So(n, ShouldEqual, "left_shoulder")
			n, _ = Name(26)
			So(n, ShouldEqual, "right_knee")
			n, _ = Name(32)
			So(n, ShouldEqual, "right_foot_index")
		})

		Convey("Then out of range ids are rejected", func() {
			_, ok := Name(-1)
			So(ok, ShouldBeFalse)
			_, ok = Name(Count)
			So(ok, ShouldBeFalse)
			_, ok = ID("tail")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestTimestamp(t *testing.T) {
	Convey("Given frame indices and a frame rate", t, func() {
		So(Timestamp(5, 30), ShouldEqual, 0.17)
		So(Timestamp(30, 30), ShouldEqual, 1.0)
		So(Timestamp(145, 30), ShouldEqual, 4.83)
		So(Timestamp(10, 0), ShouldEqual, 0)
	})
}

func TestValidate(t *testing.T) {
	Convey("Given engine output", t, func() {
		Convey("When every frame honours the contract", func() {
			frames := []Frame{Neutral(5, 30), {Index: 10}, Neutral(15, 30)}
			out, err := Validate(frames)

			Convey("Then empty frames are dropped and the rest kept in order", func() {
				So(err, ShouldBeNil)
				So(len(out), ShouldEqual, 2)
				So(out[0].Index, ShouldEqual, 5)
				So(out[1].Index, ShouldEqual, 15)
			})
		})

		Convey("When a frame is missing a landmark", func() {
			_, err := Validate([]Frame{Neutral(5, 30).Without("nose")})
			So(errors.Is(err, ErrLandmarkCount), ShouldBeTrue)
		})

		Convey("When a landmark is mislabelled", func() {
			f := Neutral(5, 30)
			f.Landmarks[3].Name = "left_eye"
			_, err := Validate([]Frame{f})
			So(errors.Is(err, ErrUnknownLandmark), ShouldBeTrue)
		})

		Convey("When an id repeats", func() {
			f := Neutral(5, 30)
			f.Landmarks[3] = f.Landmarks[2]
			_, err := Validate([]Frame{f})
			So(errors.Is(err, ErrLandmarkCount), ShouldBeTrue)
		})

		Convey("When coordinates leave the unit square", func() {
			_, err := Validate([]Frame{Neutral(5, 30).With("left_wrist", 1.2, 0.5)})
			So(errors.Is(err, ErrLandmarkValue), ShouldBeTrue)

			f := Neutral(5, 30)
			f.Landmarks[0].Z = math.NaN()
			_, err = Validate([]Frame{f})
			So(errors.Is(err, ErrLandmarkValue), ShouldBeTrue)
		})

		Convey("When frame indices go backwards", func() {
			_, err := Validate([]Frame{Neutral(10, 30), Neutral(5, 30)})
			So(errors.Is(err, ErrFrameOrder), ShouldBeTrue)

			_, err = Validate([]Frame{Neutral(0, 30)})
			So(errors.Is(err, ErrFrameOrder), ShouldBeTrue)
		})
	})
}

func TestFrameHelpers(t *testing.T) {
	Convey("Given a neutral frame", t, func() {
		base := Neutral(1, 30)

		Convey("When a landmark is moved", func() {
			moved := base.With("left_elbow", 0.4, 0.6)

			Convey("Then only the copy changes", func() {
				So(moved.ByName()["left_elbow"].X, ShouldEqual, 0.4)
				So(moved.ByName()["left_elbow"].Y, ShouldEqual, 0.6)
				So(base.ByName()["left_elbow"].X, ShouldEqual, 0.5)
			})
		})

		Convey("When landmarks are removed", func() {
			less := base.Without("left_hip", "right_hip")

			Convey("Then they are absent from the name index", func() {
				_, ok := less.ByName()["left_hip"]
				So(ok, ShouldBeFalse)
				So(len(less.Landmarks), ShouldEqual, Count-2)
				So(len(base.Landmarks), ShouldEqual, Count)
			})
		})

		Convey("When encoded as JSON", func() {
			raw, err := json.Marshal(base)
			So(err, ShouldBeNil)

			Convey("Then it uses the artifact field names", func() {
				var m map[string]any
				So(json.Unmarshal(raw, &m), ShouldBeNil)
				So(m, ShouldContainKey, "frame")
				So(m, ShouldContainKey, "timestamp_sec")
				first := m["landmarks"].([]any)[0].(map[string]any)
				So(first["name"], ShouldEqual, "nose")
				So(first, ShouldContainKey, "visibility")
			})
		})
	})
}
