package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store backs both the key/value cache and the token fact memory.
type Store struct {
	db *sql.DB
}

// Fact is a retrievable memory record with a semantic embedding. Fact ids are
// deterministic (see FactID) so a refresh cycle replaces prior facts in place.
type Fact struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	Embedding []float64 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// FactID derives a stable fact id from a string key, e.g. a token identity id
// or the "cmc-top-100" sentinel.
func FactID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = "data/app.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			embedding BLOB,
			created_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Get returns the cached value for key. Expired entries read as misses and
// are removed on the way out.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, fmt.Errorf("store not initialized")
	}
	row := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM cache WHERE key = ?`, key)
	var value []byte
	var expiresAt int64
	if err := row.Scan(&value, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cache entry: %w", err)
	}
	if expiresAt > 0 && time.Now().Unix() >= expiresAt {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
			return nil, false, fmt.Errorf("evict cache entry: %w", err)
		}
		return nil, false, nil
	}
	return value, true, nil
}

// Set writes value under key. A zero ttl stores the entry without expiration.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

// UpsertFact replaces any prior fact stored under the same id.
func (s *Store) UpsertFact(ctx context.Context, f Fact) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (id, body, embedding, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET body=excluded.body, embedding=excluded.embedding, created_at=excluded.created_at`,
		f.ID, f.Body, encodeEmbedding(f.Embedding), f.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert fact: %w", err)
	}
	return nil
}

func (s *Store) RemoveFact(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM facts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove fact: %w", err)
	}
	return nil
}

// FactByID returns the fact stored under id, or nil when absent.
func (s *Store) FactByID(ctx context.Context, id string) (*Fact, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, body, embedding, created_at FROM facts WHERE id = ?`, id)
	f, err := scanFact(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get fact: %w", err)
	}
	return f, nil
}

// SearchFacts returns the count facts nearest to embedding by cosine
// similarity. The fact universe is small (top-N tokens), a linear scan is
// enough.
func (s *Store) SearchFacts(ctx context.Context, embedding []float64, count int) ([]Fact, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, body, embedding, created_at FROM facts`)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	type scored struct {
		fact  Fact
		score float64
	}
	var all []scored
	for rows.Next() {
		f, err := scanFact(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		all = append(all, scored{fact: *f, score: cosineSimilarity(embedding, f.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows facts: %w", err)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if count > 0 && len(all) > count {
		all = all[:count]
	}
	out := make([]Fact, len(all))
	for i, sc := range all {
		out[i] = sc.fact
	}
	return out, nil
}

func scanFact(scan func(...any) error) (*Fact, error) {
	var f Fact
	var raw []byte
	var createdAt int64
	if err := scan(&f.ID, &f.Body, &raw, &createdAt); err != nil {
		return nil, err
	}
	f.Embedding = decodeEmbedding(raw)
	f.CreatedAt = time.Unix(createdAt, 0)
	return &f, nil
}

func encodeEmbedding(v []float64) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(x))
	}
	return out
}

func decodeEmbedding(raw []byte) []float64 {
	if len(raw) < 8 {
		return nil
	}
	out := make([]float64, len(raw)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out
}

func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
