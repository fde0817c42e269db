package storage

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/veritas/internal/models"
)

// SQLiteStore keeps the snapshot in a SQLite database. Every save rewrites
// the tables inside one transaction.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS document_hashes (
		doc_id TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		position INTEGER PRIMARY KEY,
		source TEXT NOT NULL,
		chunk_idx INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

// Load reads the snapshot. An empty database reports ErrCacheNotFound.
func (s *SQLiteStore) Load() (*Snapshot, error) {
	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'version'`).Scan(&version)
	if err == sql.ErrNoRows {
		return nil, ErrCacheNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cache version: %w", err)
	}
	if err := checkVersion(version); err != nil {
		return nil, err
	}

	snap := &Snapshot{Version: version, DocumentHashes: make(map[string]string)}

	rows, err := s.db.Query(`SELECT doc_id, hash FROM document_hashes`)
	if err != nil {
		return nil, fmt.Errorf("read document hashes: %w", err)
	}
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			rows.Close()
			return nil, err
		}
		snap.DocumentHashes[id] = hash
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(`SELECT source, chunk_idx, text, embedding FROM chunks ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c models.Chunk
		var blob []byte
		if err := rows.Scan(&c.Source, &c.ChunkIdx, &c.Text, &blob); err != nil {
			return nil, err
		}
		if len(blob)%4 != 0 {
			return nil, fmt.Errorf("corrupt embedding for %s#%d", c.Source, c.ChunkIdx)
		}
		snap.Chunks = append(snap.Chunks, c)
		snap.Embeddings = append(snap.Embeddings, bytesToFloat32Slice(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Save replaces the stored snapshot in a single transaction.
func (s *SQLiteStore) Save(snap *Snapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM chunks`, `DELETE FROM document_hashes`} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("clear cache tables: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES ('version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, snap.Version); err != nil {
		return fmt.Errorf("write version: %w", err)
	}

	hashStmt, err := tx.Prepare(`INSERT INTO document_hashes (doc_id, hash) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer hashStmt.Close()
	for id, hash := range snap.DocumentHashes {
		if _, err := hashStmt.Exec(id, hash); err != nil {
			return fmt.Errorf("write hash for %s: %w", id, err)
		}
	}

	chunkStmt, err := tx.Prepare(`INSERT INTO chunks (position, source, chunk_idx, text, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer chunkStmt.Close()
	for i, c := range snap.Chunks {
		if _, err := chunkStmt.Exec(i, c.Source, c.ChunkIdx, c.Text, float32SliceToBytes(snap.Embeddings[i])); err != nil {
			return fmt.Errorf("write chunk %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
