package helpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// GetTestDatabasePool creates a database connection pool for testing
func GetTestDatabasePool(ctx context.Context) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(testDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func testDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=prefer",
		envOr("POSTGRES_USER", "postgres"),
		envOr("POSTGRES_PASSWORD", "postgres"),
		envOr("POSTGRES_HOST", "interface-orchestrator-db-rw.interface-orchestrator.svc"),
		envOr("POSTGRES_PORT", "5432"),
		envOr("POSTGRES_DB", "interface_orchestrator"),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// TestDatabase provides database utilities for testing
type TestDatabase struct {
	Pool *pgxpool.Pool
	ctx  context.Context
}

// NewTestDatabase creates a new test database instance
func NewTestDatabase(t *testing.T) *TestDatabase {
	ctx := context.Background()

	pool, err := GetTestDatabasePool(ctx)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return &TestDatabase{Pool: pool, ctx: ctx}
}

// Close closes the database connection
func (db *TestDatabase) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// CreateTestUser creates a test user and returns the user ID
func (db *TestDatabase) CreateTestUser(t *testing.T, orgID, email, hashedPassword string) string {
	var userID string

	err := db.Pool.QueryRow(db.ctx, `
		INSERT INTO users (org_id, name, email, hashed_password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id
	`, orgID, "Test User", email, hashedPassword).Scan(&userID)

	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return userID
}

// CreateTestInterface creates a test interface and returns its ID
func (db *TestDatabase) CreateTestInterface(t *testing.T, orgID, userID, name, description string) string {
	var interfaceID string
	err := db.Pool.QueryRow(db.ctx, `
		INSERT INTO interfaces (org_id, created_by_user_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id
	`, orgID, userID, name, description).Scan(&interfaceID)

	if err != nil {
		t.Fatalf("Failed to create test interface: %v", err)
	}

	return interfaceID
}

// CreateTestVersion appends a spec version for an interface and returns the version ID
func (db *TestDatabase) CreateTestVersion(t *testing.T, interfaceID, specJSON, createdBy string) string {
	var versionID string
	err := db.Pool.QueryRow(db.ctx, `
		INSERT INTO interface_versions (interface_id, version_number, spec_json, design_tokens, created_by)
		SELECT $1, COALESCE(MAX(version_number), 0) + 1, $2::jsonb, '{}'::jsonb, $3
		FROM interface_versions WHERE interface_id = $1
		RETURNING id
	`, interfaceID, specJSON, createdBy).Scan(&versionID)

	if err != nil {
		t.Fatalf("Failed to create test version: %v", err)
	}

	return versionID
}

// GetVersionCount returns the number of versions recorded for an interface
func (db *TestDatabase) GetVersionCount(t *testing.T, interfaceID string) int {
	var count int
	err := db.Pool.QueryRow(db.ctx,
		"SELECT COUNT(*) FROM interface_versions WHERE interface_id = $1", interfaceID).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to get version count: %v", err)
	}
	return count
}

// HashPassword hashes a password using bcrypt for testing
func (db *TestDatabase) HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// WaitForDatabase polls until the database accepts connections or the
// attempts run out.
func WaitForDatabase(ctx context.Context, maxAttempts int) error {
	for i := 0; i < maxAttempts; i++ {
		pool, err := GetTestDatabasePool(ctx)
		if err == nil {
			pool.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}

	return fmt.Errorf("database not ready after %d attempts", maxAttempts)
}
