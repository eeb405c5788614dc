package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/okian/physiopulse/internal/domain/exercise"
	"github.com/okian/physiopulse/internal/domain/model"
	"github.com/okian/physiopulse/internal/domain/summary"
	"github.com/okian/physiopulse/pkg/logger"
)

// Dialect selects the SQL flavour of a SQLStore.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS analyses (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	exercise_type   TEXT NOT NULL,
	patient_id      TEXT NOT NULL DEFAULT '',
	session_id      TEXT NOT NULL DEFAULT '',
	video_path      TEXT NOT NULL DEFAULT '',
	processing_time DOUBLE PRECISION NOT NULL DEFAULT 0,
	landmarks_file  TEXT NOT NULL DEFAULT '',
	scores_file     TEXT NOT NULL DEFAULT '',
	summary_file    TEXT NOT NULL DEFAULT '',
	summary         TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	created_at      BIGINT NOT NULL,
	updated_at      BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses (created_at);
CREATE INDEX IF NOT EXISTS idx_analyses_patient ON analyses (patient_id, created_at)`

const columns = `id, status, exercise_type, patient_id, session_id, video_path, processing_time,
	landmarks_file, scores_file, summary_file, summary, error, created_at, updated_at`

// SQLStore keeps records in SQLite or Postgres through database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	log     logger.Logger
}

// OpenSQLite opens (creating when needed) the database file at path.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps per-connection pragmas in force and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	s, err := NewSQLStore(ctx, db, DialectSQLite, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects to the database named by dsn.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := NewSQLStore(ctx, db, DialectPostgres, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database and applies the schema.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*SQLStore, error) {
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}
	o := newOptions(opts)
	s := &SQLStore{db: db, dialect: dialect, log: o.logger.Named("store")}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	s.log.Debug(ctx, "schema applied", logger.String("dialect", string(s.dialect)))
	return nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind turns ? placeholders into $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, a model.Analysis) (err error) { //nolint:gocritic // hugeParam: records travel by value
	defer func() { observe(string(s.dialect), "save", err) }()
	if err := checkSave(&a); err != nil {
		return err
	}

	var sum string
	if a.Summary != nil {
		raw, err := json.Marshal(a.Summary)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		sum = string(raw)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO analyses (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			exercise_type = excluded.exercise_type,
			patient_id = excluded.patient_id,
			session_id = excluded.session_id,
			video_path = excluded.video_path,
			processing_time = excluded.processing_time,
			landmarks_file = excluded.landmarks_file,
			scores_file = excluded.scores_file,
			summary_file = excluded.summary_file,
			summary = excluded.summary,
			error = excluded.error,
			updated_at = excluded.updated_at`),
		a.ID, string(a.Status), string(a.ExerciseType), a.PatientID, a.SessionID, a.VideoPath, a.ProcessingTime,
		a.Files.Landmarks, a.Files.Scores, a.Files.Summary, sum, a.Error,
		a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save analysis %s: %w", a.ID, err)
	}
	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, id string) (a model.Analysis, err error) {
	defer func() { observe(string(s.dialect), "get", err) }()

	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+columns+` FROM analyses WHERE id = ?`), id)
	a, err = scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Analysis{}, ErrNotFound
	}
	if err != nil {
		return model.Analysis{}, fmt.Errorf("get analysis %s: %w", id, err)
	}
	return a, nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context, filter model.Filter, limit, offset int) (out []model.Analysis, err error) {
	defer func() { observe(string(s.dialect), "list", err) }()
	if err := checkPage(limit, offset); err != nil {
		return nil, err
	}

	where, args := whereClause(filter)
	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+columns+` FROM analyses`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`),
		args...)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	out = []model.Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return out, nil
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context, filter model.Filter) (n int, err error) {
	defer func() { observe(string(s.dialect), "count", err) }()

	where, args := whereClause(filter)
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM analyses`+where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count analyses: %w", err)
	}
	return n, nil
}

func whereClause(filter model.Filter) (string, []any) {
	if filter.PatientID == "" {
		return "", nil
	}
	return " WHERE patient_id = ?", []any{filter.PatientID}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(sc scanner) (model.Analysis, error) {
	var (
		a                model.Analysis
		status, exType   string
		sum              string
		created, updated int64
	)
	err := sc.Scan(&a.ID, &status, &exType, &a.PatientID, &a.SessionID, &a.VideoPath, &a.ProcessingTime,
		&a.Files.Landmarks, &a.Files.Scores, &a.Files.Summary, &sum, &a.Error, &created, &updated)
	if err != nil {
		return model.Analysis{}, err
	}
	a.Status = model.Status(status)
	a.ExerciseType = exercise.Type(exType)
	a.CreatedAt = time.Unix(0, created).UTC()
	a.UpdatedAt = time.Unix(0, updated).UTC()
	if sum != "" {
		a.Summary = &summary.Summary{}
		if err := json.Unmarshal([]byte(sum), a.Summary); err != nil {
			return model.Analysis{}, fmt.Errorf("decode summary of %s: %w", a.ID, err)
		}
	}
	return a, nil
}
