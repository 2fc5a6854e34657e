// Command resolver runs identity resolution offline: it reads frame
// observations from a JSONL file, resolves them against a local gallery
// checkpoint, and writes one decision per line. No broker, database or
// object store is involved.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/google/uuid"

	"github.com/your-org/playerid/internal/arbiter"
	"github.com/your-org/playerid/internal/config"
	"github.com/your-org/playerid/internal/engine"
	"github.com/your-org/playerid/internal/gallery"
	"github.com/your-org/playerid/internal/models"
	"github.com/your-org/playerid/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional, defaults apply)")
	inputPath := flag.String("input", "", "JSONL file of frame observations (required)")
	anchorsPath := flag.String("anchors", "", "JSON anchor file for the video (optional)")
	outputPath := flag.String("output", "", "output JSONL file (default stdout)")
	videoIDStr := flag.String("video", "", "video id (default: random)")
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: resolver -input observations.jsonl [-anchors anchors.json] [-output decisions.jsonl]")
		os.Exit(1)
	}

	var cfg *config.Config
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	observability.SetupLogger(cfg.Logging.Level, "text")

	videoID := uuid.New()
	if *videoIDStr != "" {
		id, err := uuid.Parse(*videoIDStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid video id: %v\n", err)
			os.Exit(1)
		}
		videoID = id
	}

	var anchors []models.AnchorAssignment
	if *anchorsPath != "" {
		f, err := os.Open(*anchorsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open anchors: %v\n", err)
			os.Exit(1)
		}
		anchors, err = arbiter.LoadAnchors(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "load anchors: %v\n", err)
			os.Exit(1)
		}
	}

	gal, err := gallery.Open(cfg.Gallery, gallery.NewFileStore(cfg.Gallery.CheckpointPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open gallery: %v\n", err)
		os.Exit(1)
	}

	frames, err := readFrames(*inputPath, videoID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read observations: %v\n", err)
		os.Exit(1)
	}

	out := os.Stdout
	if *outputPath != "" {
		f, err := os.Create(*outputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create output: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	eng := engine.New(cfg, gal)
	s := eng.StartSession(videoID, anchors)

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	total := 0
	for _, frame := range frames {
		decisions, err := eng.ProcessFrame(context.Background(), s, frame.FrameNum, frame.Observations)
		if err != nil {
			fmt.Fprintf(os.Stderr, "frame %d: %v\n", frame.FrameNum, err)
			os.Exit(1)
		}
		for _, d := range decisions {
			if err := enc.Encode(d); err != nil {
				fmt.Fprintf(os.Stderr, "write decision: %v\n", err)
				os.Exit(1)
			}
			total++
		}
	}

	if err := eng.FinishSession(s); err != nil {
		fmt.Fprintf(os.Stderr, "finish session: %v\n", err)
		os.Exit(1)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "flush output: %v\n", err)
		os.Exit(1)
	}

	slog.Info("resolution complete",
		"video_id", videoID, "frames", len(frames),
		"decisions", total, "profiles", gal.Size())
}

// readFrames loads a JSONL file of observations and groups them into
// frame tasks ordered by frame number. Lines may be bare observations
// or whole frame tasks; both shapes share the frame_num field.
func readFrames(path string, videoID uuid.UUID) ([]models.FrameTask, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	byFrame := make(map[int][]models.FrameObservation)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var task models.FrameTask
		if err := json.Unmarshal(raw, &task); err == nil && len(task.Observations) > 0 {
			byFrame[task.FrameNum] = append(byFrame[task.FrameNum], task.Observations...)
			continue
		}

		var obs models.FrameObservation
		if err := json.Unmarshal(raw, &obs); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		byFrame[obs.FrameNum] = append(byFrame[obs.FrameNum], obs)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	nums := make([]int, 0, len(byFrame))
	for n := range byFrame {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	frames := make([]models.FrameTask, 0, len(nums))
	for _, n := range nums {
		frames = append(frames, models.FrameTask{
			VideoID:      videoID,
			FrameNum:     n,
			Observations: byFrame[n],
		})
	}
	return frames, nil
}
