package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToStdout(t *testing.T) {
	log, closer, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, log)
	require.NoError(t, closer.Close())
}

func TestNewWritesToRotatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobq.log")
	log, closer, err := New(Config{Path: path})
	require.NoError(t, err)
	log.Info("hello")
	require.NoError(t, closer.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestNewAppliesRotationOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobq.log")
	_, closer, err := New(Config{Path: path, MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true})
	require.NoError(t, err)
	defer func() { _ = closer.Close() }()

	rot, ok := closer.(*lj.Logger)
	require.True(t, ok)
	require.Equal(t, 1, rot.MaxSize)
	require.Equal(t, 9, rot.MaxBackups)
	require.Equal(t, 11, rot.MaxAge)
	require.True(t, rot.Compress)
}

func TestNewAppliesRotationDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobq.log")
	_, closer, err := New(Config{Path: path})
	require.NoError(t, err)
	defer func() { _ = closer.Close() }()

	rot, ok := closer.(*lj.Logger)
	require.True(t, ok)
	require.Equal(t, DefaultMaxSizeMB, rot.MaxSize)
	require.Equal(t, DefaultMaxBackups, rot.MaxBackups)
	require.Equal(t, DefaultMaxAgeDays, rot.MaxAge)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		require.Equal(t, want, parseLevel(in), "input=%q", in)
	}
}
