package gallery_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/your-org/playerid/internal/gallery"
	"github.com/your-org/playerid/internal/models"
)

func TestFileStoreRoundTrip(t *testing.T) {
	Convey("Given a file store in a fresh directory", t, func() {
		path := filepath.Join(t.TempDir(), "gallery.json")
		store := gallery.NewFileStore(path)

		Convey("When nothing has been saved yet", func() {
			snap, err := store.Load()

			Convey("Then loading yields an empty snapshot", func() {
				So(err, ShouldBeNil)
				So(len(snap.Profiles), ShouldEqual, 0)
			})
		})

		Convey("When saving a gallery and reopening it", func() {
			cfg := galleryConfig()
			cfg.CheckpointPath = path
			g, err := gallery.Open(cfg, store)
			So(err, ShouldBeNil)
			p, err := g.AddPlayer("seven")
			So(err, ShouldBeNil)
			r := gallery.NewReferenceFrame(uuid.New(), 1, "t1", models.BBox{}, 0.9, 0.9, bodyFeatures([]float32{1, 0, 0, 0}))
			So(g.UpdatePlayer(p.ID, r.Features, &r, gallery.UpdateOptions{}), ShouldBeNil)
			So(g.Checkpoint(), ShouldBeNil)

			reopened, err := gallery.Open(cfg, store)
			So(err, ShouldBeNil)

			Convey("Then the reopened gallery carries the same state", func() {
				So(reopened.Size(), ShouldEqual, 1)
				got, err := reopened.GetProfile(p.ID)
				So(err, ShouldBeNil)
				So(got.Name, ShouldEqual, "seven")
				So(len(got.References), ShouldEqual, 1)
				So(got.Aggregates[models.RegionBody], ShouldResemble, p.Aggregates[models.RegionBody])
			})
		})
	})
}

func TestFileStoreBackupRecovery(t *testing.T) {
	Convey("Given a store with two generations of checkpoints", t, func() {
		path := filepath.Join(t.TempDir(), "gallery.json")
		store := gallery.NewFileStore(path)

		first := gallery.Snapshot{Version: 1}
		first.Profiles = append(first.Profiles, &gallery.PlayerProfile{ID: uuid.New(), Name: "first"})
		So(store.Save(first), ShouldBeNil)

		second := gallery.Snapshot{Version: 1}
		second.Profiles = append(second.Profiles, &gallery.PlayerProfile{ID: uuid.New(), Name: "second"})
		So(store.Save(second), ShouldBeNil)

		Convey("When the primary checkpoint is corrupted", func() {
			So(os.WriteFile(path, []byte("{not json"), 0o644), ShouldBeNil)
			snap, err := store.Load()

			Convey("Then loading falls back to the previous generation", func() {
				So(err, ShouldBeNil)
				So(len(snap.Profiles), ShouldEqual, 1)
				So(snap.Profiles[0].Name, ShouldEqual, "first")
			})
		})
	})
}

func TestGalleryLoadsCheckpointWithNullMaps(t *testing.T) {
	Convey("Given a checkpoint whose profile maps were written as null", t, func() {
		path := filepath.Join(t.TempDir(), "gallery.json")
		store := gallery.NewFileStore(path)

		// A profile built outside the gallery serializes its empty maps
		// as JSON null, like a hand-edited or foreign checkpoint would.
		snap := gallery.Snapshot{Version: 1}
		snap.Profiles = append(snap.Profiles, &gallery.PlayerProfile{ID: uuid.New(), Name: "seven"})
		So(store.Save(snap), ShouldBeNil)

		Convey("When opening and updating the loaded profile", func() {
			cfg := galleryConfig()
			cfg.CheckpointPath = path
			g, err := gallery.Open(cfg, store)
			So(err, ShouldBeNil)
			p, err := g.GetProfile(snap.Profiles[0].ID)
			So(err, ShouldBeNil)

			r := gallery.NewReferenceFrame(uuid.New(), 1, "t1", models.BBox{}, 0.9, 0.9, bodyFeatures([]float32{1, 0, 0, 0}))
			So(g.UpdatePlayer(p.ID, r.Features, &r, gallery.UpdateOptions{}), ShouldBeNil)
			g.RecordTrackMatch(p.ID, "t1")

			Convey("Then every map on the profile is writable", func() {
				So(len(p.Aggregates[models.RegionBody]), ShouldEqual, 4)
				So(p.TrackMatches["t1"], ShouldEqual, 1)
			})
		})
	})
}

func TestGalleryOpensEmptyOnCorruption(t *testing.T) {
	Convey("Given a corrupt checkpoint with no backup", t, func() {
		path := filepath.Join(t.TempDir(), "gallery.json")
		So(os.WriteFile(path, []byte("garbage"), 0o644), ShouldBeNil)

		Convey("When opening the gallery", func() {
			cfg := galleryConfig()
			cfg.CheckpointPath = path
			g, err := gallery.Open(cfg, gallery.NewFileStore(path))

			Convey("Then it starts empty instead of failing", func() {
				So(err, ShouldBeNil)
				So(g.Size(), ShouldEqual, 0)
			})
		})
	})
}
