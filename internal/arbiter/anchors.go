package arbiter

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"github.com/your-org/playerid/internal/config"
	"github.com/your-org/playerid/internal/models"
)

// AnchorIndex holds a video's ground-truth assignments keyed by frame.
// Conflicting anchors for the same track and frame resolve by load
// order: the first wins and the rest are logged, never raised.
type AnchorIndex struct {
	cfg     config.ArbiterConfig
	byFrame map[int][]models.AnchorAssignment
}

func NewAnchorIndex(cfg config.ArbiterConfig, anchors []models.AnchorAssignment) *AnchorIndex {
	idx := &AnchorIndex{
		cfg:     cfg,
		byFrame: make(map[int][]models.AnchorAssignment),
	}
	seen := make(map[string]bool)
	for _, a := range anchors {
		if a.TrackID != "" {
			key := strconv.Itoa(a.FrameNum) + "/" + a.TrackID
			if seen[key] {
				slog.Warn("conflicting anchor dropped, first-loaded wins",
					"frame", a.FrameNum, "track", a.TrackID, "player", a.PlayerName)
				continue
			}
			seen[key] = true
		}
		idx.byFrame[a.FrameNum] = append(idx.byFrame[a.FrameNum], a)
	}
	return idx
}

// LoadAnchors reads a per-video anchor file: a JSON object mapping
// frame numbers to anchor lists.
func LoadAnchors(r io.Reader) ([]models.AnchorAssignment, error) {
	var byFrame map[string][]models.AnchorAssignment
	if err := json.NewDecoder(r).Decode(&byFrame); err != nil {
		return nil, fmt.Errorf("decode anchors: %w", err)
	}

	frames := make([]string, 0, len(byFrame))
	for f := range byFrame {
		frames = append(frames, f)
	}
	sort.Strings(frames)

	var out []models.AnchorAssignment
	for _, f := range frames {
		frameNum, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("anchor frame key %q: %w", f, err)
		}
		for _, a := range byFrame[f] {
			a.FrameNum = frameNum
			if a.PlayerName == "" {
				return nil, fmt.Errorf("anchor at frame %d missing player name", frameNum)
			}
			out = append(out, a)
		}
	}
	return out, nil
}

// Match finds the anchor for a detection in a frame. Bbox overlap is
// primary (IoU and center distance both within bounds, best IoU wins);
// track-id equality is the fallback when no bbox matches.
func (idx *AnchorIndex) Match(frameNum int, det models.Detection) *models.AnchorAssignment {
	anchors := idx.byFrame[frameNum]
	if len(anchors) == 0 {
		return nil
	}

	var best *models.AnchorAssignment
	var bestIoU float32
	for i := range anchors {
		a := &anchors[i]
		if !a.BBox.Valid() || !det.BBox.Valid() {
			continue
		}
		iou := det.BBox.IoU(a.BBox)
		dist := det.BBox.CenterDistance(a.BBox)
		if float64(iou) <= idx.cfg.AnchorIoU || float64(dist) >= idx.cfg.AnchorCenterDistance {
			continue
		}
		if iou > bestIoU {
			bestIoU = iou
			best = a
		}
	}
	if best != nil {
		return best
	}

	for i := range anchors {
		if anchors[i].TrackID != "" && anchors[i].TrackID == det.TrackID {
			return &anchors[i]
		}
	}
	return nil
}

// Empty reports whether the index carries no anchors at all.
func (idx *AnchorIndex) Empty() bool { return len(idx.byFrame) == 0 }
