// Package knowledge provides read access to the tool-template corpus: a
// SQLite database of documentation pages and embedded tool templates
// that grounds scope definition and tool discovery.
//
// A lookup that finds nothing is not a failure. Both ListReferencePages
// and FindSimilar report "no data" as an empty/nil result so callers can
// carry on with generation from scratch.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// similarityThreshold is the minimum cosine similarity for a template to
// count as a match.
const similarityThreshold = 0.65

// Embedder turns text into an embedding vector. The production
// implementation lives in the gateway package.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// TemplateMatch is a corpus template together with its similarity score.
type TemplateMatch struct {
	Name       string
	Purpose    string
	ToolsCode  string
	AgentsCode string
	TasksCode  string
	CrewCode   string
	Score      float64
}

// Store reads and seeds the corpus database.
type Store struct {
	db       *sql.DB
	embedder Embedder
}

// NewStore opens (creating if needed) the corpus database at path.
func NewStore(path string, embedder Embedder) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("knowledge: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("knowledge: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, embedder: embedder}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("knowledge: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS doc_pages (
			id    INTEGER PRIMARY KEY AUTOINCREMENT,
			url   TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tool_templates (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL UNIQUE,
			purpose     TEXT NOT NULL,
			tools_code  TEXT NOT NULL,
			agents_code TEXT NOT NULL DEFAULT '',
			tasks_code  TEXT NOT NULL DEFAULT '',
			crew_code   TEXT NOT NULL DEFAULT '',
			embedding   BLOB NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ListReferencePages returns the titles of all documentation pages, for
// grounding the scope document. An empty corpus yields an empty slice.
func (s *Store) ListReferencePages(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT title FROM doc_pages ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("knowledge: list pages: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("knowledge: scan page: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// FindSimilar embeds the purpose text and returns the best-scoring
// template, or nil when the corpus has no template above the similarity
// threshold. Rows whose stored embedding cannot be decoded are skipped.
func (s *Store) FindSimilar(ctx context.Context, purpose string) (*TemplateMatch, error) {
	query, err := s.embedder.Embed(ctx, purpose)
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, purpose, tools_code, agents_code, tasks_code, crew_code, embedding FROM tool_templates`)
	if err != nil {
		return nil, fmt.Errorf("knowledge: query templates: %w", err)
	}
	defer rows.Close()

	var best *TemplateMatch
	for rows.Next() {
		var m TemplateMatch
		var blob []byte
		if err := rows.Scan(&m.Name, &m.Purpose, &m.ToolsCode, &m.AgentsCode, &m.TasksCode, &m.CrewCode, &blob); err != nil {
			return nil, fmt.Errorf("knowledge: scan template: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil || len(vec) != len(query) {
			continue
		}
		m.Score = cosine(query, vec)
		if m.Score >= similarityThreshold && (best == nil || m.Score > best.Score) {
			match := m
			best = &match
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge: iterate templates: %w", err)
	}
	return best, nil
}

// AddDocPage inserts or replaces a documentation page. Used by corpus
// seeding and tests.
func (s *Store) AddDocPage(ctx context.Context, url, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO doc_pages (url, title) VALUES (?, ?)
		 ON CONFLICT(url) DO UPDATE SET title = excluded.title`, url, title)
	if err != nil {
		return fmt.Errorf("knowledge: add doc page: %w", err)
	}
	return nil
}

// AddTemplate inserts or replaces a tool template, embedding its purpose.
func (s *Store) AddTemplate(ctx context.Context, m TemplateMatch) error {
	vec, err := s.embedder.Embed(ctx, m.Purpose)
	if err != nil {
		return fmt.Errorf("knowledge: embed template purpose: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_templates (name, purpose, tools_code, agents_code, tasks_code, crew_code, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			purpose = excluded.purpose,
			tools_code = excluded.tools_code,
			agents_code = excluded.agents_code,
			tasks_code = excluded.tasks_code,
			crew_code = excluded.crew_code,
			embedding = excluded.embedding`,
		m.Name, m.Purpose, m.ToolsCode, m.AgentsCode, m.TasksCode, m.CrewCode, encodeVector(vec))
	if err != nil {
		return fmt.Errorf("knowledge: add template: %w", err)
	}
	return nil
}

// --- Embedding codec ---

// encodeVector packs a vector as little-endian float64s.
func encodeVector(vec []float64) []byte {
	buf := make([]byte, 8*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

var errBadVector = errors.New("malformed embedding blob")

func decodeVector(blob []byte) ([]float64, error) {
	if len(blob) == 0 || len(blob)%8 != 0 {
		return nil, errBadVector
	}
	vec := make([]float64, len(blob)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*8:]))
	}
	return vec, nil
}

// cosine computes cosine similarity between two equal-length vectors.
func cosine(a, b []float64) float64 {
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
