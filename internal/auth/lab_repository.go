package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LabRepository defines the interface for lab geofence persistence.
type LabRepository interface {
	Create(ctx context.Context, lab *Lab) error
	GetByID(ctx context.Context, id string) (*Lab, error)
	GetBySlug(ctx context.Context, slug string) (*Lab, error)
	GetByName(ctx context.Context, name string) (*Lab, error)
	List(ctx context.Context) ([]Lab, error)
	Update(ctx context.Context, lab *Lab) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

const labColumns = "id, name, slug, latitude, longitude, radius_m, require_location, created_at, updated_at"

// SQLiteLabRepository implements LabRepository using SQLite.
type SQLiteLabRepository struct {
	db *sql.DB
}

// NewLabRepository creates a new SQLite-backed lab repository.
func NewLabRepository(db *sql.DB) *SQLiteLabRepository {
	return &SQLiteLabRepository{db: db}
}

// Create inserts a new lab. The ID is generated if empty.
func (r *SQLiteLabRepository) Create(ctx context.Context, lab *Lab) error {
	if lab.ID == "" {
		lab.ID = "lab-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC()
	lab.CreatedAt = now
	lab.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO labs (id, name, slug, latitude, longitude, radius_m, require_location, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lab.ID, lab.Name, lab.Slug, lab.Latitude, lab.Longitude,
		lab.RadiusM, boolToInt(lab.RequireLocation),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating lab: %w", err)
	}

	return nil
}

// GetByID retrieves a lab by its unique ID.
func (r *SQLiteLabRepository) GetByID(ctx context.Context, id string) (*Lab, error) {
	return r.getLab(ctx, "SELECT "+labColumns+" FROM labs WHERE id = ?", id)
}

// GetBySlug retrieves a lab by its stable slug.
func (r *SQLiteLabRepository) GetBySlug(ctx context.Context, slug string) (*Lab, error) {
	return r.getLab(ctx, "SELECT "+labColumns+" FROM labs WHERE slug = ?", slug)
}

// GetByName retrieves a lab by its display name. Desktop registrations
// carry the name, not the slug.
func (r *SQLiteLabRepository) GetByName(ctx context.Context, name string) (*Lab, error) {
	return r.getLab(ctx, "SELECT "+labColumns+" FROM labs WHERE name = ?", name)
}

// List returns all labs ordered by name.
func (r *SQLiteLabRepository) List(ctx context.Context) ([]Lab, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+labColumns+" FROM labs ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("listing labs: %w", err)
	}
	defer rows.Close()

	var labs []Lab
	for rows.Next() {
		lab, err := scanLabFrom(rows)
		if err != nil {
			return nil, err
		}
		labs = append(labs, *lab)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating labs: %w", err)
	}

	if labs == nil {
		labs = []Lab{}
	}
	return labs, nil
}

// Update modifies a lab's mutable fields (name, geofence, require flag).
func (r *SQLiteLabRepository) Update(ctx context.Context, lab *Lab) error {
	now := time.Now().UTC()
	lab.UpdatedAt = now

	result, err := r.db.ExecContext(ctx,
		`UPDATE labs SET name = ?, latitude = ?, longitude = ?, radius_m = ?, require_location = ?, updated_at = ? WHERE id = ?`,
		lab.Name, lab.Latitude, lab.Longitude, lab.RadiusM,
		boolToInt(lab.RequireLocation), now.Format(time.RFC3339), lab.ID,
	)
	if err != nil {
		return fmt.Errorf("updating lab: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrLabNotFound
	}
	return nil
}

// Delete removes a lab by ID. Member accounts cascade.
func (r *SQLiteLabRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM labs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting lab: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrLabNotFound
	}
	return nil
}

// Count returns the total number of labs.
func (r *SQLiteLabRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM labs").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting labs: %w", err)
	}
	return count, nil
}

func (r *SQLiteLabRepository) getLab(ctx context.Context, query string, args ...any) (*Lab, error) {
	return scanLabFrom(r.db.QueryRowContext(ctx, query, args...))
}

func scanLabFrom(s scanner) (*Lab, error) {
	var lab Lab
	var requireLocation int
	var createdAt, updatedAt string

	err := s.Scan(&lab.ID, &lab.Name, &lab.Slug, &lab.Latitude, &lab.Longitude,
		&lab.RadiusM, &requireLocation, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLabNotFound
		}
		return nil, fmt.Errorf("scanning lab: %w", err)
	}

	lab.RequireLocation = requireLocation != 0
	lab.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	lab.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &lab, nil
}
