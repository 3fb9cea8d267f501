package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/nerrad567/felshare-bridge/internal/auth"
	"github.com/nerrad567/felshare-bridge/internal/infrastructure/config"
)

// tokenCommand mints a bearer token for the local API with the configured
// JWT secret.
func tokenCommand(args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("token", stderr)
	subject := fs.String("subject", "", "name of the API client the token is for (required)")
	role := fs.String("role", string(auth.RoleViewer), "token role: viewer or operator")
	ttl := fs.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("-subject is required")
	}

	r, err := auth.ParseRole(*role)
	if err != nil {
		return fmt.Errorf("-role %q: %w", *role, err)
	}

	cfg, err := config.LoadUnvalidated(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return errors.New("security.jwt.secret is not set (set FELSHARE_JWT_SECRET)")
	}

	token, err := auth.GenerateToken(*subject, r, cfg.Security.JWT.Secret, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(stdout, token)
	return nil
}
