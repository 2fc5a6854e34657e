package arbiter_test

import (
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/your-org/playerid/internal/arbiter"
	"github.com/your-org/playerid/internal/config"
	"github.com/your-org/playerid/internal/gallery"
	"github.com/your-org/playerid/internal/matcher"
	"github.com/your-org/playerid/internal/models"
)

type fixture struct {
	cfg   *config.Config
	gal   *gallery.Gallery
	miner *gallery.Miner
	arb   *arbiter.Arbiter
	video uuid.UUID
}

func newFixture(anchors []models.AnchorAssignment) *fixture {
	cfg := config.Default()
	gal, _ := gallery.Open(cfg.Gallery, nil)
	miner := gallery.NewMiner(cfg.Gallery)
	m := matcher.New(cfg.Matcher, miner)
	video := uuid.New()
	return &fixture{
		cfg:   cfg,
		gal:   gal,
		miner: miner,
		arb:   arbiter.New(cfg.Arbiter, gal, m, miner, arbiter.NewAnchorIndex(cfg.Arbiter, anchors), video),
		video: video,
	}
}

func (f *fixture) observe(frameNum int, trackID string, body []float32) models.FrameObservation {
	return models.FrameObservation{
		VideoID:  f.video,
		FrameNum: frameNum,
		Detection: models.Detection{
			TrackID:    trackID,
			BBox:       models.BBox{100, 100, 200, 200},
			Confidence: 0.9,
		},
		Features: models.RegionFeatures{Body: body},
	}
}

func (f *fixture) seedPlayer(name string, body []float32) *gallery.PlayerProfile {
	p, err := f.gal.AddPlayer(name)
	if err != nil {
		panic(err)
	}
	ref := gallery.NewReferenceFrame(uuid.New(), 0, "seed-"+name, models.BBox{}, 0.9, 0.9,
		models.RegionFeatures{Body: body})
	if err := f.gal.UpdatePlayer(p.ID, ref.Features, &ref, gallery.UpdateOptions{}); err != nil {
		panic(err)
	}
	return p
}

func TestAnchorWinsAndProtectsFrame(t *testing.T) {
	Convey("Given an anchor tagged at frame 5", t, func() {
		anchors := []models.AnchorAssignment{{
			FrameNum:   5,
			TrackID:    "t1",
			BBox:       models.BBox{100, 100, 200, 200},
			PlayerName: "seven",
			Team:       "home",
		}}
		f := newFixture(anchors)

		Convey("When a detection overlaps the anchor bbox", func() {
			obs := f.observe(5, "t1", []float32{1, 0, 0, 0})
			obs.Detection.BBox = models.BBox{110, 110, 210, 210}
			d := f.arb.Resolve(obs)

			Convey("Then the anchor assigns with full confidence", func() {
				So(d.Source, ShouldEqual, models.SourceAnchor)
				So(d.Confidence, ShouldEqual, float32(1.0))
				So(d.PlayerName, ShouldEqual, "seven")
			})

			Convey("And the player is created in the gallery with its team", func() {
				p := f.gal.GetByName("seven")
				So(p, ShouldNotBeNil)
				So(p.Team, ShouldEqual, "home")
				So(len(p.References), ShouldEqual, 1)
			})

			Convey("And resolving the same frame again returns the stored decision", func() {
				again := f.arb.Resolve(obs)
				So(again, ShouldResemble, d)
			})
		})

		Convey("When a detection matches only by track id", func() {
			obs := f.observe(5, "t1", []float32{1, 0, 0, 0})
			obs.Detection.BBox = models.BBox{600, 600, 700, 700}
			d := f.arb.Resolve(obs)

			Convey("Then the track-id fallback still anchors it", func() {
				So(d.Source, ShouldEqual, models.SourceAnchor)
				So(d.PlayerName, ShouldEqual, "seven")
			})
		})
	})
}

func TestAnchorConflictFirstLoadedWins(t *testing.T) {
	Convey("Given two anchors for the same frame and track", t, func() {
		anchors := []models.AnchorAssignment{
			{FrameNum: 5, TrackID: "t1", PlayerName: "first"},
			{FrameNum: 5, TrackID: "t1", PlayerName: "second"},
		}
		f := newFixture(anchors)

		Convey("When the track resolves at that frame", func() {
			d := f.arb.Resolve(f.observe(5, "t1", []float32{1, 0, 0, 0}))

			Convey("Then the first-loaded anchor wins", func() {
				So(d.PlayerName, ShouldEqual, "first")
			})
		})
	})
}

func TestGalleryMatchBelowThresholdStaysUnassigned(t *testing.T) {
	Convey("Given a gallery with one dissimilar player", t, func() {
		f := newFixture(nil)
		f.seedPlayer("seven", []float32{1, 0, 0, 0})

		Convey("When an observation matches nothing well", func() {
			d := f.arb.Resolve(f.observe(1, "t1", []float32{0, 1, 0, 0}))

			Convey("Then the track stays unassigned rather than guessing", func() {
				So(d.Source, ShouldEqual, models.SourceUnassigned)
				So(d.PlayerID, ShouldBeNil)
			})
		})
	})
}

func TestRouteLockResistsSingleFrameChallenger(t *testing.T) {
	Convey("Given a track route-locked to one player early in the video", t, func() {
		f := newFixture(nil)
		f.seedPlayer("seven", []float32{1, 0, 0, 0})
		f.seedPlayer("eleven", []float32{0, 1, 0, 0})

		// Lock the track to seven with ~0.78 similarity; the vector is
		// orthogonal to eleven so no hard negative gets mined.
		d := f.arb.Resolve(f.observe(1, "t1", []float32{0.78, 0, 0.6246, 0}))
		f.arb.EndFrame(1)
		So(d.Source, ShouldEqual, models.SourceGallery)
		So(d.PlayerName, ShouldEqual, "seven")
		So(d.Confidence, ShouldBeGreaterThanOrEqualTo, float32(0.75))

		Convey("When a different player wins a single later frame", func() {
			d2 := f.arb.Resolve(f.observe(2, "t1", []float32{0, 1, 0, 0}))
			f.arb.EndFrame(2)

			Convey("Then the lock holds and the decision stays with the locked player", func() {
				So(d2.Source, ShouldEqual, models.SourceRouteLocked)
				So(d2.PlayerName, ShouldEqual, "seven")
			})
		})

		Convey("When the challenger persists with a decisive margin", func() {
			var last models.IdentityDecision
			for frame := 2; frame <= 4; frame++ {
				last = f.arb.Resolve(f.observe(frame, "t1", []float32{0, 1, 0, 0}))
				f.arb.EndFrame(frame)
			}

			Convey("Then the lock is displaced only after sustained evidence", func() {
				So(last.Source, ShouldEqual, models.SourceGallery)
				So(last.PlayerName, ShouldEqual, "eleven")
				So(last.Confidence, ShouldBeLessThanOrEqualTo, float32(0.99))
			})
		})
	})
}

func TestMatchConfidenceNeverReachesAnchorLevel(t *testing.T) {
	Convey("Given a perfect gallery match", t, func() {
		f := newFixture(nil)
		f.seedPlayer("seven", []float32{1, 0, 0, 0})

		Convey("When the track resolves", func() {
			d := f.arb.Resolve(f.observe(1, "t1", []float32{1, 0, 0, 0}))

			Convey("Then the confidence is capped below 1.0", func() {
				So(d.Source, ShouldEqual, models.SourceGallery)
				So(d.Confidence, ShouldEqual, float32(0.99))
			})
		})
	})
}

func TestDuplicateIdentityGraceAndDemotion(t *testing.T) {
	Convey("Given two tracks resolving to the same player", t, func() {
		f := newFixture(nil)
		f.seedPlayer("seven", []float32{1, 0, 0, 0})
		body := []float32{1, 0, 0, 0}

		resolveBoth := func(frame int) []models.IdentityDecision {
			f.arb.Resolve(f.observe(frame, "t1", body))
			f.arb.Resolve(f.observe(frame, "t2", body))
			return f.arb.EndFrame(frame)
		}

		Convey("When the conflict stays within the grace window", func() {
			var corrections []models.IdentityDecision
			for frame := 1; frame <= 10; frame++ {
				corrections = resolveBoth(frame)
			}

			Convey("Then no track is demoted yet", func() {
				So(len(corrections), ShouldEqual, 0)
			})
		})

		Convey("When the conflict outlives the grace window", func() {
			var corrections []models.IdentityDecision
			for frame := 1; frame <= 11; frame++ {
				corrections = resolveBoth(frame)
			}

			Convey("Then exactly one track is forced back and flagged for review", func() {
				So(len(corrections), ShouldEqual, 1)
				So(corrections[0].Source, ShouldEqual, models.SourceUnassigned)
				So(corrections[0].Flagged, ShouldBeTrue)
				So(corrections[0].FrameNum, ShouldEqual, 11)
			})

			Convey("And the conflict resets afterwards", func() {
				post := resolveBoth(12)
				So(len(post), ShouldEqual, 0)
			})
		})
	})
}

func TestConflictingAnchorsAreNeverDemoted(t *testing.T) {
	Convey("Given anchors naming the same player on two tracks every frame", t, func() {
		var anchors []models.AnchorAssignment
		for frame := 1; frame <= 11; frame++ {
			anchors = append(anchors,
				models.AnchorAssignment{FrameNum: frame, TrackID: "t1", BBox: models.BBox{100, 100, 200, 200}, PlayerName: "seven"},
				models.AnchorAssignment{FrameNum: frame, TrackID: "t2", BBox: models.BBox{400, 100, 500, 200}, PlayerName: "seven"},
			)
		}
		f := newFixture(anchors)

		Convey("When the conflict outlives the grace window", func() {
			var corrections []models.IdentityDecision
			for frame := 1; frame <= 11; frame++ {
				d1 := f.arb.Resolve(f.observe(frame, "t1", []float32{1, 0, 0, 0}))
				o2 := f.observe(frame, "t2", []float32{1, 0, 0, 0})
				o2.Detection.BBox = models.BBox{400, 100, 500, 200}
				d2 := f.arb.Resolve(o2)
				So(d1.Source, ShouldEqual, models.SourceAnchor)
				So(d2.Source, ShouldEqual, models.SourceAnchor)
				corrections = f.arb.EndFrame(frame)
			}

			Convey("Then neither ground-truth assignment is forced back", func() {
				So(len(corrections), ShouldEqual, 0)
			})
		})
	})
}

func TestHardNegativesMinedFromLosers(t *testing.T) {
	Convey("Given two players where one is an ambiguous near-miss", t, func() {
		f := newFixture(nil)
		winner := f.seedPlayer("seven", []float32{1, 0, 0, 0})
		loser := f.seedPlayer("eleven", []float32{0.5, 0.866, 0, 0})

		// Similarity ~0.97 to the winner, ~0.70 to the loser: the loser
		// lands in the ambiguous mining band.
		query := []float32{0.97, 0.2431, 0, 0}

		Convey("When the frame resolves to the winner", func() {
			d := f.arb.Resolve(f.observe(1, "t1", query))
			So(d.PlayerID, ShouldNotBeNil)
			So(*d.PlayerID, ShouldEqual, winner.ID)

			Convey("Then the loser has no negative until the frame ends", func() {
				So(len(loser.HardNegatives), ShouldEqual, 0)
				f.arb.EndFrame(1)
				So(len(loser.HardNegatives), ShouldEqual, 1)
				So(loser.HardNegatives[0].TrackID, ShouldEqual, "t1")
			})
		})
	})
}
