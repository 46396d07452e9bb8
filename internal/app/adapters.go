package app

import (
	"context"
	"net/url"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/dshills/lspsync/internal/config"
	"github.com/dshills/lspsync/internal/lsp"
	"github.com/dshills/lspsync/internal/process"
)

// ProcessSpawner launches language servers as child processes.
func ProcessSpawner(logger *zap.Logger) lsp.SpawnFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, cfg lsp.ServerConfig) (lsp.Process, error) {
		p, err := process.Start(ctx, process.Config{
			Command: cfg.Command,
			Args:    cfg.Args,
			Env:     cfg.Env,
			Dir:     cfg.Dir,
		}, logger.With(zap.String("component", "process"), zap.String("command", cfg.Command)))
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// FileURI returns the file:// URI of path.
func FileURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "resolving %s", path)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// SessionConfig builds the session settings for a workspace rooted at root.
func SessionConfig(root, rootURI string, cfg *config.Config) lsp.SessionConfig {
	s := cfg.Server
	return lsp.SessionConfig{
		Server: lsp.ServerConfig{
			Command:    s.Command,
			Args:       s.Args,
			Env:        s.Env,
			Dir:        root,
			LanguageID: s.LanguageID,
		},
		RootURI:             rootURI,
		KeepAlive:           s.KeepAlive,
		MaxRestarts:         s.MaxRestarts,
		WaitForRegistration: s.WaitForRegistration,
		ShutdownTimeout:     s.ShutdownTimeout,
	}
}
