package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
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

// InitSchema creates the match and train tables when missing.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS match (
			id         BIGSERIAL PRIMARY KEY,
			filename   TEXT NOT NULL,
			event      JSONB NOT NULL,
			response   JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS match_created_at_idx ON match (created_at DESC);

		CREATE TABLE IF NOT EXISTS train (
			id         BIGSERIAL PRIMARY KEY,
			name       TEXT NOT NULL,
			filename   TEXT NOT NULL,
			detector   TEXT NOT NULL,
			meta       JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS train_name_idx ON train (name);
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// --- Matches ---

func (s *PostgresStore) SaveMatch(ctx context.Context, filename string, event models.MatchEvent, response []models.DetectorResponse) (models.Match, error) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return models.Match{}, fmt.Errorf("marshal event: %w", err)
	}
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return models.Match{}, fmt.Errorf("marshal response: %w", err)
	}

	m := models.Match{Filename: filename, Event: event, Response: response}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO match (filename, event, response) VALUES ($1, $2, $3) RETURNING id, created_at`,
		filename, eventJSON, responseJSON,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return models.Match{}, fmt.Errorf("save match: %w", err)
	}
	return m, nil
}

// UpdateMatch replaces a match's response array, keeping the original event
// and snapshot, and bumps updated_at.
func (s *PostgresStore) UpdateMatch(ctx context.Context, id int64, response []models.DetectorResponse) (models.Match, error) {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return models.Match{}, fmt.Errorf("marshal response: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE match SET response = $1, updated_at = now() WHERE id = $2`,
		responseJSON, id)
	if err != nil {
		return models.Match{}, fmt.Errorf("update match: %w", err)
	}

	m, err := s.GetMatch(ctx, id)
	if err != nil {
		return models.Match{}, err
	}
	if m == nil {
		return models.Match{}, fmt.Errorf("match %d not found", id)
	}
	return *m, nil
}

const matchColumns = `m.id, m.filename, m.event, m.response, m.created_at, m.updated_at,
	EXISTS (SELECT 1 FROM train t WHERE t.filename = m.filename) AS is_trained`

func scanMatch(row pgx.Row) (models.Match, error) {
	var (
		m            models.Match
		eventJSON    []byte
		responseJSON []byte
	)
	if err := row.Scan(&m.ID, &m.Filename, &eventJSON, &responseJSON, &m.CreatedAt, &m.UpdatedAt, &m.IsTrained); err != nil {
		return models.Match{}, err
	}
	if err := json.Unmarshal(eventJSON, &m.Event); err != nil {
		return models.Match{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if err := json.Unmarshal(responseJSON, &m.Response); err != nil {
		return models.Match{}, fmt.Errorf("unmarshal response: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) GetMatch(ctx context.Context, id int64) (*models.Match, error) {
	m, err := scanMatch(s.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM match m WHERE m.id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get match: %w", err)
	}
	return &m, nil
}

// ListMatches returns one page of matches, newest first, plus the total row
// count for the filter. Pages are 1-indexed; sinceID (when positive)
// restricts the listing to rows created after that id.
func (s *PostgresStore) ListMatches(ctx context.Context, f MatchFilter, page int, sinceID int64, limit int) ([]models.Match, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}

	where, args := buildMatchWhere(f, sinceID)

	var total int
	countQuery := "SELECT COUNT(*) FROM match m " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count matches: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT `+matchColumns+` FROM match m %s ORDER BY m.created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, total, nil
}

// DeleteMatches removes the given match rows and returns their snapshot
// filenames so the caller can clean up media.
func (s *PostgresStore) DeleteMatches(ctx context.Context, ids []int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`DELETE FROM match WHERE id = ANY($1) RETURNING filename`, ids)
	if err != nil {
		return nil, fmt.Errorf("delete matches: %w", err)
	}
	defer rows.Close()

	var filenames []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scan filename: %w", err)
		}
		filenames = append(filenames, f)
	}
	return filenames, nil
}

// FilterOptions are the distinct values present in stored matches, used to
// populate the listing filter UI.
type FilterOptions struct {
	Names     []string `json:"names"`
	Matches   []string `json:"matches"`
	Detectors []string `json:"detectors"`
	Cameras   []string `json:"cameras"`
	Types     []string `json:"types"`
	Total     int      `json:"total"`
}

func (s *PostgresStore) FilterOptions(ctx context.Context) (FilterOptions, error) {
	opts := FilterOptions{}

	projections := []struct {
		dst   *[]string
		query string
	}{
		{&opts.Names, `SELECT DISTINCT lower(c->>'name')
			FROM match m, jsonb_array_elements(m.response) r, jsonb_array_elements(r->'results') c
			ORDER BY 1`},
		{&opts.Matches, `SELECT DISTINCT CASE WHEN c->'match' = 'true'::jsonb THEN 'match' ELSE 'miss' END
			FROM match m, jsonb_array_elements(m.response) r, jsonb_array_elements(r->'results') c
			ORDER BY 1`},
		{&opts.Detectors, `SELECT DISTINCT r->>'detector'
			FROM match m, jsonb_array_elements(m.response) r
			ORDER BY 1`},
		{&opts.Cameras, `SELECT DISTINCT event->>'camera' FROM match ORDER BY 1`},
		{&opts.Types, `SELECT DISTINCT event->>'type' FROM match ORDER BY 1`},
	}

	for _, p := range projections {
		values, err := s.queryStrings(ctx, p.query)
		if err != nil {
			return FilterOptions{}, err
		}
		*p.dst = values
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM match`).Scan(&opts.Total); err != nil {
		return FilterOptions{}, fmt.Errorf("count matches: %w", err)
	}
	return opts, nil
}

func (s *PostgresStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query values: %w", err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		values = append(values, v)
	}
	return values, nil
}

// --- Training ---

func (s *PostgresStore) SaveTrain(ctx context.Context, name, filename, det string, meta json.RawMessage) (models.Train, error) {
	t := models.Train{Name: name, Filename: filename, Detector: det, Meta: meta}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO train (name, filename, detector, meta) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		name, filename, det, meta,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return models.Train{}, fmt.Errorf("save train: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListTrain(ctx context.Context, name string) ([]models.Train, error) {
	query := `SELECT id, name, filename, detector, meta, created_at FROM train`
	var args []any
	if name != "" {
		query += ` WHERE name = $1`
		args = append(args, name)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list train: %w", err)
	}
	defer rows.Close()

	var records []models.Train
	for rows.Next() {
		var t models.Train
		if err := rows.Scan(&t.ID, &t.Name, &t.Filename, &t.Detector, &t.Meta, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan train: %w", err)
		}
		records = append(records, t)
	}
	return records, nil
}

// TrainedNames returns the distinct trained identity names, alphabetical.
func (s *PostgresStore) TrainedNames(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT DISTINCT name FROM train ORDER BY 1`)
}

// DeleteTrainByName removes all training records for a name and returns them
// so the caller can untrain detectors and clean up media.
func (s *PostgresStore) DeleteTrainByName(ctx context.Context, name string) ([]models.Train, error) {
	rows, err := s.pool.Query(ctx,
		`DELETE FROM train WHERE name = $1 RETURNING id, name, filename, detector, meta, created_at`, name)
	if err != nil {
		return nil, fmt.Errorf("delete train: %w", err)
	}
	defer rows.Close()

	var records []models.Train
	for rows.Next() {
		var t models.Train
		if err := rows.Scan(&t.ID, &t.Name, &t.Filename, &t.Detector, &t.Meta, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan train: %w", err)
		}
		records = append(records, t)
	}
	return records, nil
}

// FaceNameByID resolves a Rekognition face id recorded at training time back
// to the trained name.
func (s *PostgresStore) FaceNameByID(ctx context.Context, faceID string) (string, bool, error) {
	var name string
	err := s.pool.QueryRow(ctx,
		`SELECT t.name
		 FROM train t, jsonb_array_elements(t.meta->'FaceRecords') fr
		 WHERE t.detector = 'rekognition' AND fr->'Face'->>'FaceId' = $1
		 LIMIT 1`, faceID,
	).Scan(&name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("face name by id: %w", err)
	}
	return name, true, nil
}

// FaceIDsByName returns the Rekognition face ids registered for a name, used
// when untraining the collection.
func (s *PostgresStore) FaceIDsByName(ctx context.Context, name string) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT fr->'Face'->>'FaceId'
		 FROM train t, jsonb_array_elements(t.meta->'FaceRecords') fr
		 WHERE t.detector = 'rekognition' AND t.name = $1`, name)
}
