package matcher_test

import (
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/your-org/playerid/internal/config"
	"github.com/your-org/playerid/internal/gallery"
	"github.com/your-org/playerid/internal/matcher"
	"github.com/your-org/playerid/internal/models"
)

func newMatcherFixture() (*matcher.Matcher, *gallery.Gallery, *gallery.Miner) {
	cfg := config.Default()
	g, _ := gallery.Open(cfg.Gallery, nil)
	miner := gallery.NewMiner(cfg.Gallery)
	return matcher.New(cfg.Matcher, miner), g, miner
}

func addPlayerWithBody(g *gallery.Gallery, name string, body []float32) *gallery.PlayerProfile {
	p, err := g.AddPlayer(name)
	if err != nil {
		panic(err)
	}
	ref := gallery.NewReferenceFrame(uuid.New(), 1, "seed-"+name, models.BBox{}, 0.9, 0.9,
		models.RegionFeatures{Body: body})
	if err := g.UpdatePlayer(p.ID, ref.Features, &ref, gallery.UpdateOptions{}); err != nil {
		panic(err)
	}
	return p
}

func TestEnsembleScoring(t *testing.T) {
	Convey("Given a player with body and jersey aggregates", t, func() {
		m, g, _ := newMatcherFixture()
		p, err := g.AddPlayer("seven")
		So(err, ShouldBeNil)
		ref := gallery.NewReferenceFrame(uuid.New(), 1, "seed", models.BBox{}, 0.9, 0.9, models.RegionFeatures{
			Body:   []float32{1, 0, 0, 0},
			Jersey: []float32{0, 0, 1, 0},
		})
		So(g.UpdatePlayer(p.ID, ref.Features, &ref, gallery.UpdateOptions{}), ShouldBeNil)

		Convey("When the query carries only a matching body vector", func() {
			bodyOnly, _ := m.MatchAll(matcher.Query{
				Features: models.RegionFeatures{Body: []float32{1, 0, 0, 0}},
			}, g)

			Convey("Then the missing region's weight redistributes and the score is perfect", func() {
				So(len(bodyOnly), ShouldEqual, 1)
				So(bodyOnly[0].BaseScore, ShouldAlmostEqual, 1.0, 1e-5)
			})

			Convey("And a query whose jersey region disagrees scores lower", func() {
				both, _ := m.MatchAll(matcher.Query{
					Features: models.RegionFeatures{
						Body:   []float32{1, 0, 0, 0},
						Jersey: []float32{1, 0, 0, 0},
					},
				}, g)
				So(len(both), ShouldEqual, 1)
				So(both[0].BaseScore, ShouldBeLessThan, bodyOnly[0].BaseScore)
			})
		})

		Convey("When a region that agrees with the profile joins the query", func() {
			bodyOnly, _ := m.MatchAll(matcher.Query{
				Features: models.RegionFeatures{Body: []float32{0.8, 0.6, 0, 0}},
			}, g)
			withJersey, _ := m.MatchAll(matcher.Query{
				Features: models.RegionFeatures{
					Body:   []float32{0.8, 0.6, 0, 0},
					Jersey: []float32{0, 0, 1, 0},
				},
			}, g)

			Convey("Then the extra supporting evidence never lowers the score", func() {
				So(len(bodyOnly), ShouldEqual, 1)
				So(len(withJersey), ShouldEqual, 1)
				So(withJersey[0].BaseScore, ShouldBeGreaterThanOrEqualTo, bodyOnly[0].BaseScore)
			})
		})

		Convey("When no query region overlaps the profile", func() {
			cands, _ := m.MatchAll(matcher.Query{
				Features: models.RegionFeatures{Foot: []float32{1, 0, 0, 0}},
			}, g)

			Convey("Then the profile is not a candidate at all", func() {
				So(len(cands), ShouldEqual, 0)
			})
		})
	})
}

func TestJerseyBoostAndTeamExclusion(t *testing.T) {
	Convey("Given two players with identical appearance", t, func() {
		m, g, _ := newMatcherFixture()
		body := []float32{1, 0, 0, 0}
		p1 := addPlayerWithBody(g, "seven", body)
		p2 := addPlayerWithBody(g, "eleven", body)
		seven := 7
		p1.JerseyNumber = &seven

		query := matcher.Query{
			Features:     models.RegionFeatures{Body: []float32{0.8, 0.6, 0, 0}},
			JerseyNumber: &seven,
		}

		Convey("When the jersey number matches one of them", func() {
			cands, _ := m.MatchAll(query, g)

			Convey("Then the numbered player ranks first with the boost recorded", func() {
				So(len(cands), ShouldEqual, 2)
				So(cands[0].PlayerID, ShouldEqual, p1.ID)
				So(cands[0].Score-cands[1].Score, ShouldAlmostEqual, 0.10, 1e-5)
				So(len(cands[0].Adjustments), ShouldEqual, 1)
				So(cands[0].Adjustments[0].Rule, ShouldEqual, "jersey_number")
			})
		})

		Convey("When the query's team contradicts a profile's team", func() {
			p2.Team = "away"
			query.Team = "home"
			cands, _ := m.MatchAll(query, g)

			Convey("Then the mismatched player is excluded outright", func() {
				So(len(cands), ShouldEqual, 1)
				So(cands[0].PlayerID, ShouldEqual, p1.ID)
			})
		})
	})
}

func TestHardNegativePenaltyInMatching(t *testing.T) {
	Convey("Given a player who has a mined negative equal to the query", t, func() {
		m, g, miner := newMatcherFixture()
		body := []float32{1, 0, 0, 0}
		p := addPlayerWithBody(g, "seven", body)

		clean, _ := m.MatchAll(matcher.Query{Features: models.RegionFeatures{Body: body}}, g)
		So(len(clean), ShouldEqual, 1)

		miner.Mine(g, p.ID, body, "t9", 5, 0.6)

		Convey("When matching the same query again", func() {
			penalized, _ := m.MatchAll(matcher.Query{Features: models.RegionFeatures{Body: body}}, g)

			Convey("Then the score drops and the adjustment is auditable", func() {
				So(len(penalized), ShouldEqual, 1)
				So(penalized[0].Score, ShouldBeLessThan, clean[0].Score)
				found := false
				for _, adj := range penalized[0].Adjustments {
					if adj.Rule == "hard_negative" {
						found = true
						So(adj.Delta, ShouldBeLessThan, 0)
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestAdaptiveThreshold(t *testing.T) {
	Convey("Given the default matcher configuration", t, func() {
		m, g, _ := newMatcherFixture()

		Convey("An empty gallery applies only the low-diversity raise", func() {
			So(m.Threshold(g, 0.9), ShouldAlmostEqual, 0.55, 1e-5)
		})

		Convey("A small gallery raises the bar further", func() {
			addPlayerWithBody(g, "seven", []float32{1, 0, 0, 0})
			So(m.Threshold(g, 0.9), ShouldAlmostEqual, 0.60, 1e-5)
		})

		Convey("Poor detection quality lowers it", func() {
			addPlayerWithBody(g, "seven", []float32{1, 0, 0, 0})
			So(m.Threshold(g, 0.3), ShouldAlmostEqual, 0.55, 1e-5)
		})

		Convey("The threshold gates Match results", func() {
			addPlayerWithBody(g, "seven", []float32{1, 0, 0, 0})
			weak := m.Match(matcher.Query{
				Features:         models.RegionFeatures{Body: []float32{0.5, 0.866, 0, 0}},
				DetectionQuality: 0.9,
			}, g)
			strong := m.Match(matcher.Query{
				Features:         models.RegionFeatures{Body: []float32{1, 0, 0, 0}},
				DetectionQuality: 0.9,
			}, g)
			So(len(weak), ShouldEqual, 0)
			So(len(strong), ShouldEqual, 1)
		})
	})
}

func TestMatchDeterminism(t *testing.T) {
	Convey("Given several equally scored players", t, func() {
		m, g, _ := newMatcherFixture()
		body := []float32{1, 0, 0, 0}
		for _, name := range []string{"a", "b", "c", "d", "e"} {
			addPlayerWithBody(g, name, body)
		}
		query := matcher.Query{Features: models.RegionFeatures{Body: body}}

		Convey("When matching repeatedly", func() {
			first, _ := m.MatchAll(query, g)
			second, _ := m.MatchAll(query, g)

			Convey("Then the ranking is identical across calls", func() {
				So(len(first), ShouldEqual, 5)
				for i := range first {
					So(second[i].PlayerID, ShouldEqual, first[i].PlayerID)
				}
			})
		})
	})
}
