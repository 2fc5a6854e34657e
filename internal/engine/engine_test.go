package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/your-org/playerid/internal/config"
	"github.com/your-org/playerid/internal/engine"
	"github.com/your-org/playerid/internal/gallery"
	"github.com/your-org/playerid/internal/models"
)

func newEngine(t *testing.T, anchors []models.AnchorAssignment) (*engine.Engine, *engine.Session, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Gallery.CheckpointPath = filepath.Join(t.TempDir(), "gallery.json")
	gal, err := gallery.Open(cfg.Gallery, gallery.NewFileStore(cfg.Gallery.CheckpointPath))
	So(err, ShouldBeNil)
	eng := engine.New(cfg, gal)
	s := eng.StartSession(uuid.New(), anchors)
	return eng, s, cfg.Gallery.CheckpointPath
}

func obs(trackID string, body []float32) models.FrameObservation {
	return models.FrameObservation{
		Detection: models.Detection{
			TrackID:    trackID,
			BBox:       models.BBox{100, 100, 200, 200},
			Confidence: 0.9,
		},
		Features: models.RegionFeatures{Body: body},
	}
}

func TestProcessFrameEndToEnd(t *testing.T) {
	Convey("Given a session with one anchor at frame 1", t, func() {
		anchors := []models.AnchorAssignment{{
			FrameNum:   1,
			TrackID:    "t1",
			BBox:       models.BBox{100, 100, 200, 200},
			PlayerName: "seven",
		}}
		eng, s, _ := newEngine(t, anchors)

		Convey("When processing the anchored frame with mixed observations", func() {
			decisions, err := eng.ProcessFrame(context.Background(), s, 1, []models.FrameObservation{
				obs("t2", nil),
				obs("t1", []float32{1, 0, 0, 0}),
			})
			So(err, ShouldBeNil)

			Convey("Then decisions come back in track order", func() {
				So(len(decisions), ShouldEqual, 2)
				So(decisions[0].TrackID, ShouldEqual, "t1")
				So(decisions[1].TrackID, ShouldEqual, "t2")
			})

			Convey("Then the anchored track resolves with full confidence", func() {
				So(decisions[0].Source, ShouldEqual, models.SourceAnchor)
				So(decisions[0].Confidence, ShouldEqual, float32(1.0))
				So(decisions[0].PlayerName, ShouldEqual, "seven")
			})

			Convey("Then the featureless track stays unassigned", func() {
				So(decisions[1].Source, ShouldEqual, models.SourceUnassigned)
				So(decisions[1].PlayerID, ShouldBeNil)
			})

			Convey("And a later frame re-identifies the anchored player from the gallery", func() {
				later, err := eng.ProcessFrame(context.Background(), s, 200, []models.FrameObservation{
					obs("t5", []float32{1, 0, 0, 0}),
				})
				So(err, ShouldBeNil)
				So(len(later), ShouldEqual, 1)
				So(later[0].Source, ShouldEqual, models.SourceGallery)
				So(later[0].PlayerName, ShouldEqual, "seven")
				So(later[0].Confidence, ShouldBeLessThan, float32(1.0))
			})
		})

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := eng.ProcessFrame(ctx, s, 1, nil)

			Convey("Then the frame is refused before any state changes", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestFinishSessionCheckpoints(t *testing.T) {
	Convey("Given a session that resolved an anchored player", t, func() {
		anchors := []models.AnchorAssignment{{
			FrameNum:   1,
			TrackID:    "t1",
			BBox:       models.BBox{100, 100, 200, 200},
			PlayerName: "seven",
		}}
		eng, s, path := newEngine(t, anchors)
		_, err := eng.ProcessFrame(context.Background(), s, 1, []models.FrameObservation{
			obs("t1", []float32{1, 0, 0, 0}),
		})
		So(err, ShouldBeNil)

		Convey("When finishing the session", func() {
			So(eng.FinishSession(s), ShouldBeNil)

			Convey("Then the gallery checkpoint is on disk and reloadable", func() {
				_, statErr := os.Stat(path)
				So(statErr, ShouldBeNil)

				snap, err := gallery.NewFileStore(path).Load()
				So(err, ShouldBeNil)
				So(len(snap.Profiles), ShouldEqual, 1)
				So(snap.Profiles[0].Name, ShouldEqual, "seven")
			})

			Convey("And the session is no longer tracked", func() {
				So(eng.Session(s.VideoID), ShouldBeNil)
			})
		})
	})
}
