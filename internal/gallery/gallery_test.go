package gallery_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/your-org/playerid/internal/config"
	"github.com/your-org/playerid/internal/gallery"
	"github.com/your-org/playerid/internal/models"
)

func galleryConfig() config.GalleryConfig {
	return config.Default().Gallery
}

func bodyFeatures(v []float32) models.RegionFeatures {
	return models.RegionFeatures{Body: v}
}

func TestGalleryProfiles(t *testing.T) {
	Convey("Given an empty gallery", t, func() {
		g, err := gallery.Open(galleryConfig(), nil)
		So(err, ShouldBeNil)

		Convey("When adding a player", func() {
			p, err := g.AddPlayer("seven")
			So(err, ShouldBeNil)

			Convey("Then it is retrievable by id and name", func() {
				got, err := g.GetProfile(p.ID)
				So(err, ShouldBeNil)
				So(got.Name, ShouldEqual, "seven")
				So(g.GetByName("seven"), ShouldEqual, p)
				So(g.Size(), ShouldEqual, 1)
			})

			Convey("And adding the same name again fails", func() {
				_, err := g.AddPlayer("seven")
				So(errors.Is(err, gallery.ErrDuplicatePlayer), ShouldBeTrue)
			})
		})

		Convey("When looking up an unknown player", func() {
			_, err := g.GetProfile(uuid.New())

			Convey("Then it reports not found", func() {
				So(errors.Is(err, gallery.ErrPlayerNotFound), ShouldBeTrue)
			})
		})

		Convey("When ensuring a player twice", func() {
			p1, err := g.EnsurePlayer("eleven")
			So(err, ShouldBeNil)
			p2, err := g.EnsurePlayer("eleven")
			So(err, ShouldBeNil)

			Convey("Then both calls return the same profile", func() {
				So(p2.ID, ShouldEqual, p1.ID)
				So(g.Size(), ShouldEqual, 1)
			})
		})
	})
}

func TestUpdatePlayerAggregates(t *testing.T) {
	Convey("Given a gallery with one player", t, func() {
		g, err := gallery.Open(galleryConfig(), nil)
		So(err, ShouldBeNil)
		p, err := g.AddPlayer("seven")
		So(err, ShouldBeNil)
		videoID := uuid.New()

		Convey("When folding in two reference frames of different quality", func() {
			v1 := []float32{1, 0, 0, 0}
			v2 := []float32{0, 1, 0, 0}
			r1 := gallery.NewReferenceFrame(videoID, 1, "t1", models.BBox{}, 0.9, 0.9, bodyFeatures(v1))
			r2 := gallery.NewReferenceFrame(videoID, 2, "t1", models.BBox{}, 0.9, 0.5, bodyFeatures(v2))
			So(g.UpdatePlayer(p.ID, r1.Features, &r1, gallery.UpdateOptions{}), ShouldBeNil)
			So(g.UpdatePlayer(p.ID, r2.Features, &r2, gallery.UpdateOptions{}), ShouldBeNil)

			Convey("Then the aggregate is the quality-weighted mean, not an overwrite", func() {
				agg := p.Aggregates[models.RegionBody]
				So(agg, ShouldNotBeNil)
				total := r1.Quality + r2.Quality
				So(float64(agg[0]), ShouldAlmostEqual, r1.Quality/total, 1e-5)
				So(float64(agg[1]), ShouldAlmostEqual, r2.Quality/total, 1e-5)
				So(len(p.References), ShouldEqual, 2)
			})

			Convey("And the profile diversity reflects the spread", func() {
				So(p.Diversity, ShouldAlmostEqual, 1.0, 1e-5)
			})
		})

		Convey("When submitting the same reference frame twice", func() {
			v := []float32{1, 0, 0, 0}
			r := gallery.NewReferenceFrame(videoID, 1, "t1", models.BBox{}, 0.9, 0.9, bodyFeatures(v))
			So(g.UpdatePlayer(p.ID, r.Features, &r, gallery.UpdateOptions{}), ShouldBeNil)
			aggBefore := append([]float32(nil), p.Aggregates[models.RegionBody]...)
			So(g.UpdatePlayer(p.ID, r.Features, &r, gallery.UpdateOptions{}), ShouldBeNil)

			Convey("Then the second submission has no effect", func() {
				So(len(p.References), ShouldEqual, 1)
				So(p.Aggregates[models.RegionBody], ShouldResemble, aggBefore)
			})
		})

		Convey("When updating an unknown player without create-on-write", func() {
			err := g.UpdatePlayer(uuid.New(), bodyFeatures([]float32{1, 0}), nil, gallery.UpdateOptions{})

			Convey("Then it fails with not found", func() {
				So(errors.Is(err, gallery.ErrPlayerNotFound), ShouldBeTrue)
			})
		})

		Convey("When updating an unknown player with create-on-write", func() {
			id := uuid.New()
			err := g.UpdatePlayer(id, bodyFeatures([]float32{0, 0, 1, 0}), nil, gallery.UpdateOptions{
				CreateIfMissing: true,
				Name:            "nine",
			})
			So(err, ShouldBeNil)

			Convey("Then the profile exists with the requested id", func() {
				created, err := g.GetProfile(id)
				So(err, ShouldBeNil)
				So(created.Name, ShouldEqual, "nine")
				So(created.Aggregates[models.RegionBody], ShouldResemble, []float32{0, 0, 1, 0})
			})
		})
	})
}

func TestTrackHistoryAndBreadcrumbs(t *testing.T) {
	Convey("Given a gallery with one player", t, func() {
		g, err := gallery.Open(galleryConfig(), nil)
		So(err, ShouldBeNil)
		p, err := g.AddPlayer("seven")
		So(err, ShouldBeNil)

		Convey("When recording track matches and breadcrumbs", func() {
			g.RecordTrackMatch(p.ID, "t1")
			g.RecordTrackMatch(p.ID, "t1")
			So(g.RecordBreadcrumb(p.ID, "t1"), ShouldBeNil)

			Convey("Then the counters accumulate per track", func() {
				So(p.TrackMatches["t1"], ShouldEqual, 2)
				So(p.Breadcrumbs["t1"], ShouldEqual, 1)
			})
		})

		Convey("When recording a breadcrumb for an unknown player", func() {
			err := g.RecordBreadcrumb(uuid.New(), "t1")

			Convey("Then it fails with not found", func() {
				So(errors.Is(err, gallery.ErrPlayerNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestProfilesDeterministicOrder(t *testing.T) {
	Convey("Given a gallery with several players", t, func() {
		g, err := gallery.Open(galleryConfig(), nil)
		So(err, ShouldBeNil)
		for _, name := range []string{"c", "a", "b"} {
			_, err := g.AddPlayer(name)
			So(err, ShouldBeNil)
		}

		Convey("When listing profiles repeatedly", func() {
			first := g.Profiles()
			second := g.Profiles()

			Convey("Then the order is identical across calls", func() {
				So(len(first), ShouldEqual, 3)
				for i := range first {
					So(second[i].ID, ShouldEqual, first[i].ID)
				}
			})
		})
	})
}
