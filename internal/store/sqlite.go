package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TanviPoddar/CodeGenie/internal/model"

	_ "modernc.org/sqlite"
)

const createBuildsTable = `
CREATE TABLE IF NOT EXISTS builds (
    id           TEXT PRIMARY KEY,
    language     TEXT NOT NULL,
    status       TEXT NOT NULL,
    failed_stage TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL,
    finished_at  DATETIME
)`

const createStagesTable = `
CREATE TABLE IF NOT EXISTS stages (
    build_id    TEXT NOT NULL REFERENCES builds(id),
    seq         INTEGER NOT NULL,
    name        TEXT NOT NULL,
    status      TEXT NOT NULL,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME,
    results     TEXT,
    PRIMARY KEY (build_id, seq)
)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite. Stages live in their own table
// and analyzer results are stored as JSON.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
// ":memory:" keeps a single connection so every query sees the same database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range []string{createBuildsTable, createStagesTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// sqliteDSN sets the pragmas on every pooled connection. Write transactions
// take the database lock at BEGIN.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateBuild inserts a new build and any stages it already carries.
func (s *SQLiteStore) CreateBuild(ctx context.Context, b *model.Build) error {
	if err := checkNew(b); err != nil {
		return fmt.Errorf("create build: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM builds WHERE id = ?", b.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check build: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("create build %s: %w", b.ID, ErrDuplicate)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO builds (id, language, status, failed_stage, error, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Language, b.Status, b.FailedStage, b.Error, b.CreatedAt.UTC(), nullTime(b.FinishedAt),
	); err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	for i, st := range b.Stages {
		if err := insertStage(ctx, tx, b.ID, i, st); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetBuild retrieves a build and its stages by ID.
func (s *SQLiteStore) GetBuild(ctx context.Context, id string) (*model.Build, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	b, err := getBuild(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b.Stages, err = loadStages(ctx, tx, id); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBuilds returns a paginated list of builds ordered by created_at DESC,
// along with the total count of all builds.
func (s *SQLiteStore) ListBuilds(ctx context.Context, limit, offset int) ([]*model.Build, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM builds").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count builds: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, language, status, failed_stage, error, created_at, finished_at
		FROM builds ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, max(offset, 0),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list builds: %w", err)
	}

	var builds []*model.Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		builds = append(builds, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate builds: %w", err)
	}

	for _, b := range builds {
		if b.Stages, err = loadStages(ctx, tx, b.ID); err != nil {
			return nil, 0, err
		}
	}
	return builds, total, nil
}

// AppendStage adds a stage to a non-terminal build.
func (s *SQLiteStore) AppendStage(ctx context.Context, buildID string, st model.Stage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := requireMutable(ctx, tx, buildID); err != nil {
		return fmt.Errorf("append stage: %w", err)
	}
	var seq int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM stages WHERE build_id = ?", buildID).Scan(&seq); err != nil {
		return fmt.Errorf("count stages: %w", err)
	}
	if err := insertStage(ctx, tx, buildID, seq, st); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateStage replaces the stage named st.Name.
func (s *SQLiteStore) UpdateStage(ctx context.Context, buildID string, st model.Stage) error {
	results, err := marshalResults(st.Results)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := requireMutable(ctx, tx, buildID); err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE stages SET status = ?, started_at = ?, finished_at = ?, results = ?
		WHERE build_id = ? AND name = ?`,
		st.Status, st.StartedAt.UTC(), nullTime(st.FinishedAt), results, buildID, st.Name,
	)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update stage %q: %w", st.Name, ErrNotFound)
	}
	return tx.Commit()
}

// FinishBuild moves a build to a terminal status and sets finished_at.
func (s *SQLiteStore) FinishBuild(ctx context.Context, buildID string, c Completion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM builds WHERE id = ?", buildID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get build status: %w", err)
	}
	if !model.IsTerminal(c.Status) || !model.ValidTransition(current, c.Status) {
		return fmt.Errorf("finish build %s: %s -> %s: %w", buildID, current, c.Status, ErrInvalidTransition)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE builds SET status = ?, failed_stage = ?, error = ?, finished_at = ? WHERE id = ?",
		c.Status, c.FailedStage, c.Error, c.At.UTC(), buildID,
	); err != nil {
		return fmt.Errorf("update build: %w", err)
	}
	return tx.Commit()
}

// GetBuildStats aggregates over all stored builds.
func (s *SQLiteStore) GetBuildStats(ctx context.Context) (*BuildStats, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, language, created_at, finished_at FROM builds")
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	acc := newStatsAccumulator()
	for rows.Next() {
		var (
			status, language string
			created          time.Time
			finished         sql.NullTime
		)
		if err := rows.Scan(&status, &language, &created, &finished); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		acc.add(status, language, created, timePtr(finished))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return acc.result(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuild(r rowScanner) (*model.Build, error) {
	b := &model.Build{Stages: []model.Stage{}}
	var finished sql.NullTime
	if err := r.Scan(&b.ID, &b.Language, &b.Status, &b.FailedStage, &b.Error, &b.CreatedAt, &finished); err != nil {
		return nil, err
	}
	b.FinishedAt = timePtr(finished)
	return b, nil
}

func getBuild(ctx context.Context, tx *sql.Tx, id string) (*model.Build, error) {
	b, err := scanBuild(tx.QueryRowContext(ctx,
		`SELECT id, language, status, failed_stage, error, created_at, finished_at
		FROM builds WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get build: %w", err)
	}
	return b, nil
}

func requireMutable(ctx context.Context, tx *sql.Tx, id string) error {
	var status string
	err := tx.QueryRowContext(ctx, "SELECT status FROM builds WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get build status: %w", err)
	}
	if model.IsTerminal(status) {
		return ErrInvalidTransition
	}
	return nil
}

func loadStages(ctx context.Context, tx *sql.Tx, buildID string) ([]model.Stage, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT name, status, started_at, finished_at, results
		FROM stages WHERE build_id = ? ORDER BY seq`, buildID,
	)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	stages := []model.Stage{}
	for rows.Next() {
		var (
			st       model.Stage
			finished sql.NullTime
			results  sql.NullString
		)
		if err := rows.Scan(&st.Name, &st.Status, &st.StartedAt, &finished, &results); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		st.FinishedAt = timePtr(finished)
		if results.Valid {
			st.Results = &model.StageResult{}
			if err := json.Unmarshal([]byte(results.String), st.Results); err != nil {
				return nil, fmt.Errorf("decode stage results: %w", err)
			}
		}
		stages = append(stages, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stages: %w", err)
	}
	return stages, nil
}

func insertStage(ctx context.Context, tx *sql.Tx, buildID string, seq int, st model.Stage) error {
	results, err := marshalResults(st.Results)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stages (build_id, seq, name, status, started_at, finished_at, results)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		buildID, seq, st.Name, st.Status, st.StartedAt.UTC(), nullTime(st.FinishedAt), results,
	); err != nil {
		return fmt.Errorf("insert stage: %w", err)
	}
	return nil
}

func marshalResults(r *model.StageResult) (sql.NullString, error) {
	if r == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode stage results: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
