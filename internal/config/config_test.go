package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.False(t, cfg.DevMode)
	require.Equal(t, BackendDynamo, cfg.StoreBackend)
	require.Equal(t, "DownloadTokens", cfg.Tables.Tokens)
	require.Equal(t, "DownloadUsage", cfg.Tables.Usage)
	require.Equal(t, "Videos", cfg.Tables.Videos)
	require.Equal(t, 10*time.Second, cfg.RequestTimeout)
	require.Equal(t, 5, cfg.ConsumeAttempts)
	require.Equal(t, "/vidshare/jwt-secret", cfg.Params.JWTSecret)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("TOKENS_TABLE", "tokens-dev")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("RATE_LIMIT_BURST", "4")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.DevMode)
	require.Equal(t, BackendMemory, cfg.StoreBackend)
	require.Equal(t, "tokens-dev", cfg.Tables.Tokens)
	require.Equal(t, 3*time.Second, cfg.RequestTimeout)
	require.Equal(t, "console", cfg.Log.Format)
	require.Equal(t, 4, cfg.RateLimit.Burst)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("CONSUME_ATTEMPTS", "0")

	_, err := Load()
	require.ErrorContains(t, err, "STORE_BACKEND")
	require.ErrorContains(t, err, "CONSUME_ATTEMPTS")
}

type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, names ...string) (map[string]string, error) {
	out := map[string]string{}
	for _, n := range names {
		v, ok := m[n]
		if !ok {
			return nil, errors.New("missing " + n)
		}
		out[n] = v
	}
	return out, nil
}

func TestResolveSecrets(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	r := mapResolver{
		"/vidshare/jwt-secret":          "jwt",
		"/vidshare/admin-password-hash": "hash",
	}
	require.Error(t, cfg.ResolveSecrets(context.Background(), r))

	cfg.DevMode = true
	require.NoError(t, cfg.ResolveSecrets(context.Background(), r))
	require.Equal(t, "jwt", cfg.Secrets.JWTSecret)
	require.Equal(t, "hash", cfg.Secrets.AdminPasswordHash)
	require.Empty(t, cfg.Secrets.APIGatewaySecret)
}
