package ksatagent

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Artifact sources recorded in the cache
const (
	SourceGenerated = "generated"
	SourceSaved     = "saved"
)

// OutputCache is a local sqlite copy of artifacts the client has seen
type OutputCache struct {
	db *sql.DB
}

// CachedOutput is one cached artifact row
type CachedOutput struct {
	Filename      string    `json:"filename"`
	Subject       string    `json:"subject"`
	QuestionCount int       `json:"question_count"`
	Source        string    `json:"source"`
	CachedAt      time.Time `json:"cached_at"`
	Body          string    `json:"-"`
}

// OpenCache opens a cache database connection
func OpenCache(dbPath string) (*OutputCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &OutputCache{db: db}, nil
}

// Close closes the database connection
func (c *OutputCache) Close() error {
	return c.db.Close()
}

// CreateTables creates the necessary tables if they don't exist
func (c *OutputCache) CreateTables() error {
	query := `CREATE TABLE IF NOT EXISTS artifacts (
		filename TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		question_count INTEGER NOT NULL,
		source TEXT NOT NULL,
		body TEXT NOT NULL,
		cached_at DATETIME NOT NULL
	)`
	if _, err := c.db.Exec(query); err != nil {
		return fmt.Errorf("failed to execute %s: %w", query, err)
	}
	return nil
}

// Put stores an artifact under filename, replacing any earlier copy
func (c *OutputCache) Put(filename, source string, a *Artifact) error {
	if a == nil {
		return fmt.Errorf("nil artifact for %s", filename)
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	_, err = c.db.Exec(
		`INSERT INTO artifacts (filename, subject, question_count, source, body, cached_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET subject = excluded.subject, question_count = excluded.question_count,
			source = excluded.source, body = excluded.body, cached_at = excluded.cached_at`,
		filename, a.Card.Title(), len(a.Questions), source, string(body), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache artifact: %w", err)
	}
	return nil
}

// Get loads a cached artifact by filename
func (c *OutputCache) Get(filename string) (*Artifact, error) {
	var body string
	err := c.db.QueryRow("SELECT body FROM artifacts WHERE filename = ?", filename).Scan(&body)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("artifact not cached: %s", filename)
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact %s: %w", filename, err)
	}
	return &a, nil
}

// List returns cached rows newest first, optionally limited by count
func (c *OutputCache) List(limit int) ([]CachedOutput, error) {
	query := "SELECT filename, subject, question_count, source, cached_at FROM artifacts ORDER BY cached_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []CachedOutput
	for rows.Next() {
		var row CachedOutput
		if err := rows.Scan(&row.Filename, &row.Subject, &row.QuestionCount, &row.Source, &row.CachedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out = append(out, row)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}

	return out, nil
}

// GeneratedFilename names a freshly generated artifact in the cache
func GeneratedFilename(requestID string) string {
	return fmt.Sprintf("generated-%s.json", requestID)
}
