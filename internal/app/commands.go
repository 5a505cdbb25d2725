package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sha1n/relic-rag/internal/auth"
	"github.com/sha1n/relic-rag/internal/config"
	"github.com/sha1n/relic-rag/internal/index"
	"github.com/sha1n/relic-rag/internal/retrieval"
	"github.com/spf13/pflag"
)

// RunIndex compiles the corpus into the index directory and prints build stats.
// With a positive wait it waits that long for a concurrent build to finish
// instead of failing with index.ErrBuildInProgress.
func RunIndex(ctx context.Context, params RunParams, flags *pflag.FlagSet, wait time.Duration, out io.Writer) error {
	settings, err := loadSettings(params, flags)
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(settings)
	if err != nil {
		return err
	}
	defer closeLog()

	builder := index.NewBuilder(settings.Index.CorpusDir, settings.Index.Dir, index.WithLockWait(wait))
	stats, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}

	_, err = fmt.Fprintf(out, "Indexed %s into %s\n  files seen:    %d\n  files skipped: %d\n  pages:         %d\n  terms:         %d\n  roles:         %d\n",
		settings.Index.CorpusDir, settings.Index.Dir,
		stats.FilesSeen, stats.FilesSkipped, stats.Pages, stats.Terms, stats.Roles)
	return err
}

// RunSearch runs one retrieval against the index and prints the ranked pages.
func RunSearch(params RunParams, flags *pflag.FlagSet, query, role string, out io.Writer) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if strings.TrimSpace(role) == "" {
		return fmt.Errorf("role cannot be empty")
	}

	settings, err := loadSettings(params, flags)
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(settings)
	if err != nil {
		return err
	}
	defer closeLog()

	engine, err := retrieval.Open(settings.Index.Dir,
		retrieval.WithTopK(settings.Retrieval.TopK),
		retrieval.WithScoreThreshold(settings.Retrieval.ScoreThreshold))
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}

	results := engine.Retrieve(query, role)
	if len(results) == 0 {
		_, err = fmt.Fprintf(out, "No documents found for role %q\n", role)
		return err
	}
	for i, r := range results {
		if _, err := fmt.Fprintf(out, "%d. [%.4f] %s (%s)\n", i+1, r.Score, r.Title, r.PageID); err != nil {
			return err
		}
	}
	return nil
}

// RunToken signs a bearer token for the jwt auth mode, for local testing of the chat API.
func RunToken(params RunParams, flags *pflag.FlagSet, subject, role string, ttl time.Duration, out io.Writer) error {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(role) == "" {
		return fmt.Errorf("subject and role are required")
	}

	settings, err := loadSettings(params, flags)
	if err != nil {
		return err
	}
	if settings.Auth.Type != config.AuthTypeJWT {
		return fmt.Errorf("tokens require auth-type %q, got %q", config.AuthTypeJWT, settings.Auth.Type)
	}

	claims := jwt.MapClaims{"iat": time.Now().Unix()}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	token, err := auth.SignToken(auth.Identity{Subject: subject, Role: role},
		[]byte(settings.Auth.JWT.Secret), settings.Auth.JWT.RoleClaim, claims)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
