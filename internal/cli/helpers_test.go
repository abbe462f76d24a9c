package cli

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/arvig-etl/internal/config"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func minimalConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("PANEL_CSV_DIR", dir)
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "arvig.db"))
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}
