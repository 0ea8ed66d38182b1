package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/medprompt/backend/internal/storage/models"
	"github.com/medprompt/backend/pkg/logger"
)

// Trend metrics map to assessment columns; nothing else may reach the query.
var trendColumns = map[string]string{
	"glucose":        "glucose",
	"bmi":            "bmi",
	"blood_pressure": "blood_pressure",
	"risk_score":     "risk_score",
}

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		pregnancies REAL NOT NULL,
		glucose REAL NOT NULL,
		blood_pressure REAL NOT NULL,
		skin_thickness REAL NOT NULL,
		insulin REAL NOT NULL,
		bmi REAL NOT NULL,
		diabetes_pedigree_function REAL NOT NULL,
		age REAL NOT NULL,
		risk_score REAL NOT NULL,
		risk_level TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assessments_created ON assessments(created_at);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		prompt TEXT NOT NULL,
		response TEXT,
		context_chunks INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_kind ON query_history(kind);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertAssessment(ctx context.Context, a *models.Assessment) error {
	query := `
		INSERT INTO assessments (id, source, pregnancies, glucose, blood_pressure, skin_thickness, insulin,
			bmi, diabetes_pedigree_function, age, risk_score, risk_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		a.ID,
		a.Source,
		a.Pregnancies,
		a.Glucose,
		a.BloodPressure,
		a.SkinThickness,
		a.Insulin,
		a.BMI,
		a.DiabetesPedigreeFunction,
		a.Age,
		a.RiskScore,
		a.RiskLevel,
		a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}

	logger.Debug("Assessment recorded",
		zap.String("assessment_id", a.ID),
		zap.String("source", a.Source),
		zap.Float64("risk_score", a.RiskScore),
	)
	return nil
}

// ListAssessments returns the newest assessments first.
func (c *Client) ListAssessments(ctx context.Context, limit int) ([]models.Assessment, error) {
	query := `
		SELECT id, source, pregnancies, glucose, blood_pressure, skin_thickness, insulin, bmi,
			diabetes_pedigree_function, age, risk_score, risk_level, created_at
		FROM assessments
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer rows.Close()

	var out []models.Assessment
	for rows.Next() {
		var a models.Assessment
		var createdAt int64

		err := rows.Scan(&a.ID, &a.Source, &a.Pregnancies, &a.Glucose, &a.BloodPressure, &a.SkinThickness,
			&a.Insulin, &a.BMI, &a.DiabetesPedigreeFunction, &a.Age, &a.RiskScore, &a.RiskLevel, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		a.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, a)
	}

	return out, rows.Err()
}

// Trend returns the latest limit values of metric in chronological order.
func (c *Client) Trend(ctx context.Context, metric string, limit int) ([]models.TrendPoint, error) {
	column, ok := trendColumns[metric]
	if !ok {
		return nil, fmt.Errorf("unknown trend metric %q", metric)
	}

	query := fmt.Sprintf(`
		SELECT value, created_at FROM (
			SELECT %s AS value, created_at, rowid AS seq
			FROM assessments
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		) ORDER BY created_at ASC, seq ASC
	`, column)

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trend: %w", err)
	}
	defer rows.Close()

	var points []models.TrendPoint
	for rows.Next() {
		var p models.TrendPoint
		var createdAt int64
		if err := rows.Scan(&p.Value, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		p.Timestamp = time.UnixMilli(createdAt)
		points = append(points, p)
	}

	return points, rows.Err()
}

func (c *Client) InsertQueryRecord(ctx context.Context, record *models.QueryRecord) error {
	query := `
		INSERT INTO query_history (id, kind, prompt, response, context_chunks, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		record.ID,
		record.Kind,
		record.Prompt,
		record.Response,
		record.ContextChunks,
		record.LatencyMS,
		record.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	logger.Debug("Query recorded",
		zap.String("query_id", record.ID),
		zap.String("kind", record.Kind),
		zap.Int("latency_ms", record.LatencyMS),
	)
	return nil
}

// GetQueryHistory returns the newest records first; an empty kind matches all.
func (c *Client) GetQueryHistory(ctx context.Context, kind string, limit int) ([]models.QueryRecord, error) {
	query := `
		SELECT id, kind, prompt, response, context_chunks, latency_ms, created_at
		FROM query_history
		WHERE (? = '' OR kind = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		var createdAt int64

		err := rows.Scan(&r.ID, &r.Kind, &r.Prompt, &r.Response, &r.ContextChunks, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, r)
	}

	return records, rows.Err()
}
