// Command seed creates the demo account used in local development and prints
// an access token for it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/example/meeting-service/internal/application"
	"github.com/example/meeting-service/internal/authn"
	"github.com/example/meeting-service/internal/bootstrap"
	"github.com/example/meeting-service/internal/config"
	"github.com/example/meeting-service/internal/persistence"
)

const (
	demoEmail       = "demo@example.com"
	demoPassword    = "Demo1234"
	demoDisplayName = "Demo User"
	demoTokenTTL    = 7 * 24 * time.Hour
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env file: %v\n", err)
	}

	if err := run(context.Background(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StorageDriver == config.DriverMemory {
		return errors.New("the memory driver does not persist between processes")
	}

	storage, err := bootstrap.OpenStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	signer, err := authn.NewVerifier([]byte(cfg.AccessTokenSecret), nil, time.Now)
	if err != nil {
		return err
	}

	return seed(ctx, storage.Users, signer, uuid.NewString, time.Now, out)
}

// seed creates the demo user unless an account with the demo email exists.
func seed(ctx context.Context, users persistence.UserRepository, signer *authn.Verifier, newID func() string, now func() time.Time, out io.Writer) error {
	existing, err := users.GetUserByEmail(ctx, demoEmail)
	switch {
	case err == nil:
		fmt.Fprintln(out, "Demo user already exists, skipping seed")
		return printToken(out, signer, existing.ID)
	case !errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("look up demo user: %w", err)
	}

	hash, err := application.HashPassword(demoPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	created := now().UTC()
	user := persistence.User{
		ID:           newID(),
		Email:        demoEmail,
		DisplayName:  demoDisplayName,
		PasswordHash: hash,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	if err := users.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create demo user: %w", err)
	}

	fmt.Fprintln(out, "Demo user created:")
	fmt.Fprintf(out, "   Email: %s\n", user.Email)
	fmt.Fprintf(out, "   Password: %s\n", demoPassword)
	fmt.Fprintf(out, "   Display Name: %s\n", user.DisplayName)
	return printToken(out, signer, user.ID)
}

func printToken(out io.Writer, signer *authn.Verifier, userID string) error {
	token, err := signer.Sign(userID, demoTokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "   Access token: %s\n", token)
	return nil
}
