package handler_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jun/vidshare/internal/auth"
	"github.com/jun/vidshare/internal/catalog"
	"github.com/jun/vidshare/internal/crypto"
	"github.com/jun/vidshare/internal/grant"
	"github.com/jun/vidshare/internal/handler"
	"github.com/jun/vidshare/internal/kv"
	"github.com/jun/vidshare/internal/ledger"
	"github.com/jun/vidshare/internal/model"
	"github.com/jun/vidshare/internal/redemption"
	"github.com/jun/vidshare/internal/token"
)

const (
	testPassword  = "let-me-in"
	testJWTSecret = "test-secret"
)

type stubIssuer struct{}

func (stubIssuer) SignReadURL(_ context.Context, objectName string, ttl time.Duration) (grant.Grant, error) {
	return grant.Grant{URL: "https://bucket.example.com/" + objectName + "?sig=x", ExpiresAt: time.Now().Add(ttl)}, nil
}

type env struct {
	admin  *handler.AdminHandler
	access *handler.AccessHandler
	auth   *auth.AdminAuth
	tokens *token.Store
	videos *catalog.Catalog
}

func newEnv(t *testing.T) *env {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	a, err := auth.NewAdminAuth(string(hash), testJWTSecret)
	require.NoError(t, err)

	tokens := token.NewStore(kv.NewMemoryTable("tokens"))
	videos := catalog.New(kv.NewMemoryTable("videos"))
	usage := ledger.New(kv.NewMemoryTable("usage"), crypto.NewPlainSealer())
	minter := token.NewMinter(tokens, nil, zerolog.Nop())
	coord := redemption.NewCoordinator(tokens, videos, usage, stubIssuer{}, redemption.Options{}, zerolog.Nop())

	for _, id := range []string{"v1", "v2"} {
		_, err := videos.Register(context.Background(), model.VideoRecord{VideoID: id, Title: "Video " + id, FileName: id + ".mp4", FileSize: 42})
		require.NoError(t, err)
	}

	return &env{
		admin:  handler.NewAdminHandler(a, minter, tokens, videos, usage, "https://videos.example.com", zerolog.Nop()),
		access: handler.NewAccessHandler(coord, zerolog.Nop()),
		auth:   a,
		tokens: tokens,
		videos: videos,
	}
}

func (e *env) adminToken(t *testing.T) string {
	t.Helper()
	s, err := e.auth.Login(testPassword)
	require.NoError(t, err)
	return s.Token
}

func makeRequest(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		PathParameters: map[string]string{},
	}
}

func makeAdminRequest(t *testing.T, e *env, method, path, body string) events.APIGatewayProxyRequest {
	t.Helper()
	req := makeRequest(method, path, body)
	req.Headers["Authorization"] = "Bearer " + e.adminToken(t)
	return req
}

func decode(t *testing.T, resp events.APIGatewayProxyResponse, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(resp.Body), v), resp.Body)
}

func (e *env) seed(t *testing.T, code string, expiresIn time.Duration, maxDownloads, current int, scope string) {
	t.Helper()
	_, err := e.tokens.Create(context.Background(), model.AccessToken{
		Code:             code,
		ExpiresAt:        time.Now().Add(expiresIn),
		MaxDownloads:     maxDownloads,
		CurrentDownloads: current,
		AllowedVideos:    scope,
		CreatedAt:        time.Now(),
	})
	require.NoError(t, err)
}
