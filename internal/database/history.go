package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/electrumscan/internal/model"
)

// FileName is the database file created inside the database directory.
const FileName = "electrumscan.db"

// ErrNoRuns is returned by CompareLatest when fewer than two runs exist.
var ErrNoRuns = errors.New("at least two saved runs are required")

// HistoryDB is the scan-history store.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when missing.
	CreateIfNotExists bool

	// EnableWAL switches the journal to write-ahead logging.
	EnableWAL bool
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a scan with --save first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	h := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := h.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return h, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

func (h *HistoryDB) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed TEXT NOT NULL,
		started_at TEXT NOT NULL,
		stages TEXT NOT NULL,
		total INTEGER NOT NULL,
		high INTEGER NOT NULL,
		medium INTEGER NOT NULL,
		low INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scores (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		score INTEGER NOT NULL,
		risk TEXT NOT NULL,
		signals TEXT NOT NULL,
		PRIMARY KEY (run_id, host, port)
	);

	CREATE INDEX IF NOT EXISTS idx_scores_host ON scores(host);
	`
	_, err := h.db.ExecContext(ctx, schema)
	return err
}

// RunSummary describes one saved run without its scores.
type RunSummary struct {
	ID        int64
	Seed      string
	StartedAt time.Time
	Stages    []string
	Total     int
	High      int
	Medium    int
	Low       int
}

// SaveRun stores the run's scores and returns the new run id.
func (h *HistoryDB) SaveRun(ctx context.Context, run *model.ScanRun) (int64, error) {
	if run == nil {
		return 0, errors.New("nil run")
	}
	counts := run.RiskCounts()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (seed, started_at, stages, total, high, medium, low) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.Seed,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		strings.Join(run.PerformedStages, ","),
		len(run.Scores),
		counts[model.RiskHigh],
		counts[model.RiskMedium],
		counts[model.RiskLow],
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO scores (run_id, host, port, score, risk, signals) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare score insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range run.Scores {
		signals := s.Signals
		if signals == nil {
			signals = []string{}
		}
		encoded, err := json.Marshal(signals)
		if err != nil {
			return 0, fmt.Errorf("failed to encode signals for %s: %w", s.Address(), err)
		}
		if _, err := stmt.ExecContext(ctx, id, s.Host, s.Port, s.HoneypotScore, string(s.RiskLevel), string(encoded)); err != nil {
			return 0, fmt.Errorf("failed to insert score for %s: %w", s.Address(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// ListRuns returns saved runs, newest first. A limit <= 0 returns all runs.
func (h *HistoryDB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `SELECT id, seed, started_at, stages, total, high, medium, low FROM runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunSummary, 0)
	for rows.Next() {
		var (
			r         RunSummary
			startedAt string
			stages    string
		)
		if err := rows.Scan(&r.ID, &r.Seed, &startedAt, &stages, &r.Total, &r.High, &r.Medium, &r.Low); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = parseTimestamp(startedAt)
		r.Stages = splitStages(stages)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ScoresForRun returns the scores saved with runID ordered by host and port.
func (h *HistoryDB) ScoresForRun(ctx context.Context, runID int64) ([]model.ScoreRecord, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT host, port, score, risk, signals FROM scores WHERE run_id = ? ORDER BY host, port`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	scores := make([]model.ScoreRecord, 0)
	for rows.Next() {
		var (
			s       model.ScoreRecord
			risk    string
			signals string
		)
		if err := rows.Scan(&s.Host, &s.Port, &s.HoneypotScore, &risk, &signals); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		s.RiskLevel = model.RiskLevel(risk)
		if err := json.Unmarshal([]byte(signals), &s.Signals); err != nil {
			return nil, fmt.Errorf("failed to decode signals for %s: %w", s.Address(), err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// ScoreChange is the difference for one server between two runs.
// Before or After is nil when the server is absent from that run.
type ScoreChange struct {
	Host   string
	Port   int
	Before *model.ScoreRecord
	After  *model.ScoreRecord
}

// Address returns host:port.
func (c ScoreChange) Address() string {
	return model.JoinHostPort(c.Host, c.Port)
}

// Delta is After minus Before, counting a missing side as zero.
func (c ScoreChange) Delta() int {
	var before, after int
	if c.Before != nil {
		before = c.Before.HoneypotScore
	}
	if c.After != nil {
		after = c.After.HoneypotScore
	}
	return after - before
}

// RiskChanged reports whether the risk level differs between the runs.
func (c ScoreChange) RiskChanged() bool {
	if c.Before == nil || c.After == nil {
		return true
	}
	return c.Before.RiskLevel != c.After.RiskLevel
}

// Comparison is the result of CompareLatest.
type Comparison struct {
	Previous RunSummary
	Latest   RunSummary

	// Changes lists servers whose score or presence changed, by largest
	// absolute delta first.
	Changes []ScoreChange

	// Unchanged counts servers with identical scores in both runs.
	Unchanged int
}

// CompareLatest compares the two most recent runs.
func (h *HistoryDB) CompareLatest(ctx context.Context) (*Comparison, error) {
	runs, err := h.ListRuns(ctx, 2)
	if err != nil {
		return nil, err
	}
	if len(runs) < 2 {
		return nil, ErrNoRuns
	}
	return h.Compare(ctx, runs[1], runs[0])
}

// Compare diffs the scores of two runs.
func (h *HistoryDB) Compare(ctx context.Context, previous, latest RunSummary) (*Comparison, error) {
	before, err := h.ScoresForRun(ctx, previous.ID)
	if err != nil {
		return nil, err
	}
	after, err := h.ScoresForRun(ctx, latest.ID)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]*ScoreChange)
	order := make([]string, 0, len(before)+len(after))
	entry := func(s model.ScoreRecord) *ScoreChange {
		key := s.Address()
		c, ok := changes[key]
		if !ok {
			c = &ScoreChange{Host: s.Host, Port: s.Port}
			changes[key] = c
			order = append(order, key)
		}
		return c
	}
	for i := range before {
		entry(before[i]).Before = &before[i]
	}
	for i := range after {
		entry(after[i]).After = &after[i]
	}

	cmp := &Comparison{Previous: previous, Latest: latest, Changes: make([]ScoreChange, 0)}
	for _, key := range order {
		c := changes[key]
		if c.Before != nil && c.After != nil &&
			c.Before.HoneypotScore == c.After.HoneypotScore && c.Before.RiskLevel == c.After.RiskLevel {
			cmp.Unchanged++
			continue
		}
		cmp.Changes = append(cmp.Changes, *c)
	}
	sort.SliceStable(cmp.Changes, func(i, j int) bool {
		return abs(cmp.Changes[i].Delta()) > abs(cmp.Changes[j].Delta())
	})
	return cmp, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func splitStages(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// timestampFormats lists layouts SQLite and older rows may use.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp returns the zero time when no layout matches.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
