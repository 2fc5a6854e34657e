// Package storage holds the long-term archive behind the in-memory
// gallery: player profiles and reference embeddings in Postgres
// (pgvector for cross-video similarity search) and detection crops in
// object storage. The engine core never depends on it; hosts wire it
// in when they want durability beyond the checkpoint file.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/playerid/internal/config"
	"github.com/your-org/playerid/internal/gallery"
	"github.com/your-org/playerid/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Players ---

// UpsertPlayer mirrors a gallery profile into the archive, including
// its aggregated body embedding for cross-video search.
func (s *PostgresStore) UpsertPlayer(ctx context.Context, p *gallery.PlayerProfile) error {
	var vec *pgvector.Vector
	if body := p.Aggregates[models.RegionBody]; len(body) > 0 {
		v := pgvector.NewVector(body)
		vec = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO players (id, name, jersey_number, team, shoe_color, body_embedding, reference_count, diversity, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   jersey_number = EXCLUDED.jersey_number,
		   team = EXCLUDED.team,
		   shoe_color = EXCLUDED.shoe_color,
		   body_embedding = EXCLUDED.body_embedding,
		   reference_count = EXCLUDED.reference_count,
		   diversity = EXCLUDED.diversity,
		   updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.JerseyNumber, p.Team, p.ShoeColor, vec,
		len(p.References), p.Diversity, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert player: %w", err)
	}
	return nil
}

// PlayerRecord is the archived view of a profile.
type PlayerRecord struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	JerseyNumber   *int      `json:"jersey_number,omitempty"`
	Team           string    `json:"team,omitempty"`
	ShoeColor      string    `json:"shoe_color,omitempty"`
	ReferenceCount int       `json:"reference_count"`
	Diversity      float64   `json:"diversity"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s *PostgresStore) GetPlayer(ctx context.Context, id uuid.UUID) (*PlayerRecord, error) {
	p := &PlayerRecord{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, jersey_number, team, shoe_color, reference_count, diversity, updated_at
		 FROM players WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.JerseyNumber, &p.Team, &p.ShoeColor, &p.ReferenceCount, &p.Diversity, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPlayers(ctx context.Context) ([]PlayerRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, jersey_number, team, shoe_color, reference_count, diversity, updated_at
		 FROM players ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []PlayerRecord
	for rows.Next() {
		var p PlayerRecord
		if err := rows.Scan(&p.ID, &p.Name, &p.JerseyNumber, &p.Team, &p.ShoeColor,
			&p.ReferenceCount, &p.Diversity, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, nil
}

// --- Reference embeddings ---

// AddReferenceEmbedding archives one scored reference sample.
func (s *PostgresStore) AddReferenceEmbedding(ctx context.Context, playerID uuid.UUID, ref gallery.ReferenceFrame) error {
	body := ref.Features.Get(models.RegionBody)
	if len(body) == 0 {
		return nil
	}
	vec := pgvector.NewVector(body)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reference_embeddings (id, player_id, video_id, frame_num, track_id, embedding, quality, similarity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		ref.ID, playerID, ref.VideoID, ref.FrameNum, ref.TrackID, vec,
		ref.Quality, ref.Similarity, ref.CapturedAt)
	if err != nil {
		return fmt.Errorf("add reference embedding: %w", err)
	}
	return nil
}

// SearchMatch is one result of a cross-video profile search.
type SearchMatch struct {
	PlayerID uuid.UUID `json:"player_id"`
	Name     string    `json:"name"`
	Score    float32   `json:"score"`
}

// SearchPlayers finds the closest archived profiles for an embedding,
// across every video the archive has seen.
func (s *PostgresStore) SearchPlayers(ctx context.Context, embedding []float32, threshold float64, limit int) ([]SearchMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, 1 - (body_embedding <=> $1) AS score
		 FROM players
		 WHERE body_embedding IS NOT NULL
		   AND 1 - (body_embedding <=> $1) >= $2
		 ORDER BY body_embedding <=> $1
		 LIMIT $3`,
		vec, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search players: %w", err)
	}
	defer rows.Close()

	var matches []SearchMatch
	for rows.Next() {
		var m SearchMatch
		if err := rows.Scan(&m.PlayerID, &m.Name, &m.Score); err != nil {
			return nil, fmt.Errorf("scan search match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// --- Identity events ---

func (s *PostgresStore) CreateIdentityEvent(ctx context.Context, ev *models.IdentityEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO identity_events (id, video_id, frame_num, track_id, player_id, player_name, confidence, source, flagged, snapshot_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ev.ID, ev.VideoID, ev.FrameNum, ev.TrackID, ev.PlayerID, ev.PlayerName,
		ev.Confidence, ev.Source, ev.Flagged, ev.SnapshotKey, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("create identity event: %w", err)
	}
	return nil
}

// QueryIdentityEvents pages a video's archived decisions, optionally
// filtered by player, frame range or review flag.
func (s *PostgresStore) QueryIdentityEvents(ctx context.Context, videoID uuid.UUID, playerID *uuid.UUID, fromFrame, toFrame *int, flagged *bool, limit, offset int) ([]models.IdentityEvent, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	baseWhere := "WHERE video_id = $1"
	args := []interface{}{videoID}
	argIdx := 2

	if playerID != nil {
		baseWhere += fmt.Sprintf(" AND player_id = $%d", argIdx)
		args = append(args, *playerID)
		argIdx++
	}
	if fromFrame != nil {
		baseWhere += fmt.Sprintf(" AND frame_num >= $%d", argIdx)
		args = append(args, *fromFrame)
		argIdx++
	}
	if toFrame != nil {
		baseWhere += fmt.Sprintf(" AND frame_num <= $%d", argIdx)
		args = append(args, *toFrame)
		argIdx++
	}
	if flagged != nil && *flagged {
		baseWhere += " AND flagged"
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM identity_events " + baseWhere
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count identity events: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, video_id, frame_num, track_id, player_id, player_name, confidence, source, flagged, snapshot_key, created_at
		 FROM identity_events %s ORDER BY frame_num, track_id LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query identity events: %w", err)
	}
	defer rows.Close()

	var events []models.IdentityEvent
	for rows.Next() {
		var ev models.IdentityEvent
		if err := rows.Scan(&ev.ID, &ev.VideoID, &ev.FrameNum, &ev.TrackID, &ev.PlayerID,
			&ev.PlayerName, &ev.Confidence, &ev.Source, &ev.Flagged, &ev.SnapshotKey, &ev.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan identity event: %w", err)
		}
		events = append(events, ev)
	}
	return events, total, nil
}

// GetIdentityEvent returns a single archived decision by ID.
func (s *PostgresStore) GetIdentityEvent(ctx context.Context, id uuid.UUID) (*models.IdentityEvent, error) {
	var ev models.IdentityEvent
	err := s.pool.QueryRow(ctx,
		`SELECT id, video_id, frame_num, track_id, player_id, player_name, confidence, source, flagged, snapshot_key, created_at
		 FROM identity_events WHERE id = $1`, id).
		Scan(&ev.ID, &ev.VideoID, &ev.FrameNum, &ev.TrackID, &ev.PlayerID,
			&ev.PlayerName, &ev.Confidence, &ev.Source, &ev.Flagged, &ev.SnapshotKey, &ev.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity event: %w", err)
	}
	return &ev, nil
}
