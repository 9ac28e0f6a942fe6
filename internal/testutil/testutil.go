// Package testutil provides shared test helpers for databases, redis and notes.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/starford/synapse/internal/models"
	"github.com/starford/synapse/internal/store/sqlite"
)

// TestDB creates a temporary SQLite store that is automatically cleaned up.
func TestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "synapse-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := sqlite.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRedis starts an in-memory redis and returns a client for it.
func TestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SeedNote inserts a note in status Creating.
func SeedNote(t *testing.T, db *sqlite.DB, noteID, userID, content string) {
	t.Helper()
	err := db.UpsertNote(context.Background(), models.Note{
		ID:      noteID,
		UserID:  userID,
		Content: content,
		Status:  models.StatusCreating,
	})
	if err != nil {
		t.Fatal(err)
	}
}

// Note reads a note or fails the test.
func Note(t *testing.T, db *sqlite.DB, noteID string) *models.Note {
	t.Helper()
	n, err := db.GetNote(context.Background(), noteID)
	if err != nil {
		t.Fatal(err)
	}
	return n
}
