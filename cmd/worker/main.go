package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/playerid/internal/config"
	"github.com/your-org/playerid/internal/engine"
	"github.com/your-org/playerid/internal/gallery"
	"github.com/your-org/playerid/internal/models"
	"github.com/your-org/playerid/internal/observability"
	"github.com/your-org/playerid/internal/queue"
	"github.com/your-org/playerid/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting identity resolution worker",
		"checkpoint", cfg.Gallery.CheckpointPath,
	)

	// Open the gallery from its checkpoint file
	gal, err := gallery.Open(cfg.Gallery, gallery.NewFileStore(cfg.Gallery.CheckpointPath))
	if err != nil {
		slog.Error("open gallery", "error", err)
		os.Exit(1)
	}

	eng := engine.New(cfg, gal)
	defer func() {
		if err := eng.Close(); err != nil {
			slog.Error("flush gallery", "error", err)
		}
	}()

	// Connect to Postgres for the profile archive
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO for detection-crop snapshots
	snaps, err := storage.NewSnapshotStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := snaps.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The engine is single-owner: control commands and frame tasks both
	// mutate it, so all access goes through one mutex.
	var mu sync.Mutex

	// Session control: start/finish/breadcrumb commands from the API
	sub, err := consumer.SubscribeSessionControl(func(data []byte) {
		var ctrl models.SessionControl
		if err := json.Unmarshal(data, &ctrl); err != nil {
			slog.Error("unmarshal session control", "error", err)
			return
		}

		mu.Lock()
		defer mu.Unlock()

		switch ctrl.Type {
		case models.SessionControlStart:
			eng.StartSession(ctrl.VideoID, ctrl.Anchors)

		case models.SessionControlFinish:
			s := eng.Session(ctrl.VideoID)
			if s == nil {
				slog.Warn("finish for unknown session", "video_id", ctrl.VideoID)
				return
			}
			if err := eng.FinishSession(s); err != nil {
				slog.Error("finish session", "video_id", ctrl.VideoID, "error", err)
			}
			archiveGallery(ctx, db, eng.Gallery())

		case models.SessionControlBreadcrumb:
			if ctrl.PlayerID == nil || ctrl.TrackID == "" {
				slog.Warn("breadcrumb missing player or track")
				return
			}
			if err := eng.Gallery().RecordBreadcrumb(*ctrl.PlayerID, ctrl.TrackID); err != nil {
				slog.Warn("record breadcrumb", "player_id", ctrl.PlayerID, "error", err)
			}

		default:
			slog.Warn("unknown session control", "type", ctrl.Type)
		}
	})
	if err != nil {
		slog.Error("subscribe session control", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sub.Unsubscribe() }()

	// Start consuming observation tasks
	err = consumer.ConsumeObservations(ctx, "identity-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var task models.FrameTask
		if err := json.Unmarshal(msg.Data(), &task); err != nil {
			slog.Error("unmarshal frame task", "error", err)
			return nil // Don't retry on unmarshal errors
		}

		mu.Lock()
		s := eng.Session(task.VideoID)
		if s == nil {
			// Frames may arrive before an explicit start; open an
			// anchor-less session rather than drop them.
			s = eng.StartSession(task.VideoID, nil)
		}
		decisions, err := eng.ProcessFrame(ctx, s, task.FrameNum, task.Observations)
		mu.Unlock()
		if err != nil {
			return fmt.Errorf("process frame %d of %s: %w", task.FrameNum, task.VideoID, err)
		}

		crops := make(map[string][]byte)
		for _, o := range task.Observations {
			if len(o.Crop) > 0 {
				crops[o.Detection.TrackID] = o.Crop
			}
		}

		for _, d := range decisions {
			key := ""
			if crop, ok := crops[d.TrackID]; ok {
				key = storage.SnapshotKey(task.VideoID.String(), d.FrameNum, d.TrackID)
				if err := snaps.PutSnapshot(ctx, key, crop); err != nil {
					slog.Warn("store snapshot", "error", err, "key", key)
					key = ""
				}
			}
			ev := models.EventFromDecision(d, key)
			if err := producer.PublishIdentity(ctx, task.VideoID.String(), ev); err != nil {
				slog.Error("publish identity", "error", err, "track", d.TrackID)
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("start observation consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", ":8082")
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}

// archiveGallery mirrors the gallery into Postgres: profiles with their
// aggregate body embeddings plus every reference sample.
func archiveGallery(ctx context.Context, db *storage.PostgresStore, gal *gallery.Gallery) {
	for _, p := range gal.Profiles() {
		if err := db.UpsertPlayer(ctx, p); err != nil {
			slog.Error("archive player", "player", p.Name, "error", err)
			continue
		}
		for _, ref := range p.References {
			if err := db.AddReferenceEmbedding(ctx, p.ID, ref); err != nil {
				slog.Error("archive reference", "player", p.Name, "error", err)
			}
		}
	}
	slog.Info("gallery archived", "profiles", gal.Size())
}
