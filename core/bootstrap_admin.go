package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"

	"github.com/sirupsen/logrus"
)

const bootstrapAdminUsername = "admin"

// BootstrapAdmin creates an initial staff admin when no staff account exists.
// It is idempotent: if a staff account already exists, it does nothing.
func BootstrapAdmin(ctx context.Context, repo UserRepository, cfg Config, logger logrus.FieldLogger) error {
	if !cfg.BootstrapAdminEnabled {
		return nil
	}

	has, err := repo.HasStaff(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	password, err := generatePassword(32)
	if err != nil {
		return err
	}

	hash, err := HashPassword(password, cfg.PasswordIterations)
	if err != nil {
		return err
	}

	if _, err := repo.Create(ctx, NewUser{
		Username:     bootstrapAdminUsername,
		PasswordHash: hash,
		Email:        bootstrapAdminUsername + "@example.com",
		Role:         "ADMIN",
		IsStaff:      true,
	}); err != nil {
		return err
	}

	log := logger.WithField("username", bootstrapAdminUsername)
	if cfg.InitialAdminPasswordPath != "" {
		if err := os.WriteFile(cfg.InitialAdminPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		log.Infof("initial admin created; credentials written to %s", cfg.InitialAdminPasswordPath)
	} else {
		log.WithField("password", password).Warn("initial admin created")
	}

	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	// base64 expands 3 bytes to 4 chars, so length raw bytes is always enough
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
