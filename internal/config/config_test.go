package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GT_JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8443", cfg.GRPCAddr)
	require.Equal(t, ":3000", cfg.HTTPAddr)
	require.Equal(t, 168*time.Hour, cfg.TokenTTL)
	require.Equal(t, 256, cfg.SendQueue)
	require.Equal(t, 4000, cfg.MaxContent)
	require.Equal(t, 5*time.Minute, cfg.CodeTTL)
	require.Equal(t, 5, cfg.LoginMaxFails)
	require.Equal(t, 200, cfg.APIRequests)
	require.Equal(t, 15*time.Minute, cfg.APIWindow)
	require.False(t, cfg.TLS())
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("GT_JWT_SECRET", "")

	_, err := Load("")
	require.ErrorContains(t, err, "GT_JWT_SECRET")
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("GT_JWT_SECRET=from-file\nGT_HTTP_ADDR=:9000\n"), 0o600))
	// the environment wins over the file
	t.Setenv("GT_HTTP_ADDR", ":9100")
	t.Setenv("GT_JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("GT_JWT_SECRET"))

	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.JWTSecret)
	require.Equal(t, ":9100", cfg.HTTPAddr)
	require.NoError(t, os.Unsetenv("GT_JWT_SECRET"))
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	t.Setenv("GT_JWT_SECRET", "x")

	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("GT_JWT_SECRET", "x")
	t.Setenv("GT_TOKEN_TTL", "forever")

	_, err := Load("")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{JWTSecret: "k", DSN: "postgres://", TokenTTL: time.Hour, MaxContent: 10, APIRequests: 1, APIWindow: time.Minute}
	require.NoError(t, base.Validate())

	c := base
	c.TLSCert = "cert.pem"
	require.ErrorContains(t, c.Validate(), "together")

	c.TLSKey = "key.pem"
	require.NoError(t, c.Validate())
	require.True(t, c.TLS())

	c = base
	c.MaxContent = 0
	require.Error(t, c.Validate())

	c = base
	c.APIWindow = 0
	require.ErrorContains(t, c.Validate(), "GT_API_WINDOW")
}

func TestLogger(t *testing.T) {
	c := Config{LogLevel: "debug", Dev: true}
	l, err := c.Logger()
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(zapcore.DebugLevel))

	c = Config{LogLevel: "warn"}
	l, err = c.Logger()
	require.NoError(t, err)
	require.False(t, l.Core().Enabled(zapcore.InfoLevel))

	_, err = Config{LogLevel: "loud"}.Logger()
	require.Error(t, err)
}
