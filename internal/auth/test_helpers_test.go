package auth

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testSlogLogger returns a logger that discards all output.
func testSlogLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testDB creates a temporary SQLite database with the auth schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "auth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE labs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			radius_m REAL NOT NULL DEFAULT 50,
			require_location INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;

		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			lab_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (lab_id) REFERENCES labs(id) ON DELETE CASCADE
		) STRICT;

		CREATE INDEX idx_users_email ON users(email);
		CREATE INDEX idx_users_lab_id ON users(lab_id);
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying auth schema: %v", err)
	}

	return db
}

// seedTestLab inserts a lab and returns it.
func seedTestLab(t *testing.T, db *sql.DB, name, slug string) *Lab {
	t.Helper()

	repo := NewLabRepository(db)
	lab := &Lab{
		Name:            name,
		Slug:            slug,
		Latitude:        12.9716,
		Longitude:       77.5946,
		RadiusM:         50,
		RequireLocation: true,
	}
	if err := repo.Create(context.Background(), lab); err != nil {
		t.Fatalf("creating test lab %s: %v", name, err)
	}
	return lab
}

// seedTestUser inserts a member account bound to the given lab.
func seedTestUser(t *testing.T, db *sql.DB, email, labID string, role Role) *User {
	t.Helper()

	hash, err := HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	repo := NewUserRepository(db)
	user := &User{
		Email:        email,
		DisplayName:  email,
		PasswordHash: hash,
		LabID:        labID,
		Role:         role,
		IsActive:     true,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", email, err)
	}
	return user
}
