package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for the seed admin password.
const seedPasswordBytes = 16

// SeedAdmin creates the initial admin account and a placeholder lab on
// first boot if no users exist. The generated password is logged and must
// be changed immediately. Returns the generated password (empty string if
// seeding was skipped).
func SeedAdmin(ctx context.Context, userRepo UserRepository, labRepo LabRepository, logger *slog.Logger) (string, error) {
	count, err := userRepo.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}

	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	lab := &Lab{
		Name:            "Default Lab",
		Slug:            "default-lab",
		Latitude:        0,
		Longitude:       0,
		RadiusM:         50,
		RequireLocation: true,
	}
	if err := labRepo.Create(ctx, lab); err != nil {
		return "", fmt.Errorf("creating seed lab: %w", err)
	}

	admin := &User{
		Email:        "admin@labgate.local",
		DisplayName:  "System Admin",
		PasswordHash: hash,
		LabID:        lab.ID,
		Role:         RoleAdmin,
		IsActive:     true,
	}
	if err := userRepo.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	logger.Warn("seed admin account created",
		"email", admin.Email,
		"password", password,
		"action_required", "change this password immediately",
	)

	return password, nil
}
