package app

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jun/vidshare/internal/config"
	"github.com/jun/vidshare/internal/crypto"
	"github.com/jun/vidshare/internal/grant"
	"github.com/jun/vidshare/internal/kv"
	"github.com/jun/vidshare/internal/model"
)

const originSecret = "cloudfront-shared-secret"

type stubIssuer struct{}

func (stubIssuer) SignReadURL(_ context.Context, objectName string, ttl time.Duration) (grant.Grant, error) {
	return grant.Grant{URL: "https://bucket.example.com/" + objectName, ExpiresAt: time.Now().Add(ttl)}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	return &config.Config{
		StoreBackend:    config.BackendMemory,
		VideoBucket:     "videos",
		FrontendURL:     "https://videos.example.com",
		RequestTimeout:  time.Second,
		ConsumeAttempts: 5,
		RateLimit:       config.RateLimitConfig{RequestsPerSecond: 1, Burst: 3},
		Secrets: config.Secrets{
			JWTSecret:         "jwt",
			AdminPasswordHash: string(hash),
			APIGatewaySecret:  originSecret,
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) (*App, Deps) {
	t.Helper()
	deps := Deps{
		Tokens: kv.NewMemoryTable("tokens"),
		Usage:  kv.NewMemoryTable("usage"),
		Videos: kv.NewMemoryTable("videos"),
		Sealer: crypto.NewPlainSealer(),
		Grants: stubIssuer{},
	}
	a, err := New(cfg, deps, zerolog.Nop())
	require.NoError(t, err)
	return a, deps
}

func request(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Body:       body,
		Headers: map[string]string{
			"X-Origin-Verify": originSecret,
			"X-Forwarded-For": "198.51.100.20",
		},
	}
}

func TestNew_RequiresOriginSecretOutsideDevMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Secrets.APIGatewaySecret = ""
	_, err := New(cfg, Deps{}, zerolog.Nop())
	require.Error(t, err)
}

func TestNew_RejectsPlaintextPassword(t *testing.T) {
	cfg := testConfig(t)
	cfg.Secrets.AdminPasswordHash = "pw"
	_, err := New(cfg, Deps{}, zerolog.Nop())
	require.Error(t, err)
}

func TestHandleRequest_Preflight(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))

	resp, err := a.HandleRequest(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "OPTIONS", Path: "/videos/download"})
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "https://videos.example.com", resp.Headers["Access-Control-Allow-Origin"])
	_, err = uuid.Parse(resp.Headers["X-Request-Id"])
	require.NoError(t, err)
}

func TestHandleRequest_OriginVerify(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))

	req := request("POST", "/admin/login", `{"password":"pw"}`)
	req.Headers["X-Origin-Verify"] = "wrong"
	resp, _ := a.HandleRequest(context.Background(), req)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	delete(req.Headers, "X-Origin-Verify")
	req.Headers["x-origin-verify"] = originSecret
	resp, _ = a.HandleRequest(context.Background(), req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleRequest_DevModeSkipsOriginVerify(t *testing.T) {
	cfg := testConfig(t)
	cfg.DevMode = true
	cfg.Secrets.APIGatewaySecret = ""
	a, _ := newTestApp(t, cfg)

	resp, _ := a.HandleRequest(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "POST", Path: "/admin/login", Body: `{"password":"pw"}`})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleRequest_RoutesAndAPIPrefix(t *testing.T) {
	a, deps := newTestApp(t, testConfig(t))
	ctx := context.Background()

	video, err := kv.Encode(model.VideoRecord{VideoID: "v1", Title: "Final", FileName: "final.mp4"})
	require.NoError(t, err)
	_, err = deps.Videos.Create(ctx, "v1", video)
	require.NoError(t, err)

	login, _ := a.HandleRequest(ctx, request("POST", "/api/admin/login", `{"password":"pw"}`))
	require.Equal(t, http.StatusOK, login.StatusCode)
	adminToken := login.Body[strings.Index(login.Body, `"token":"`)+len(`"token":"`):]
	adminToken = adminToken[:strings.Index(adminToken, `"`)]

	mint := request("POST", "/api/admin/generate-session-token", `{"sessionName":"Cup","videoIds":["v1"]}`)
	mint.Headers["Authorization"] = "Bearer " + adminToken
	resp, _ := a.HandleRequest(ctx, mint)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
	code := resp.Body[strings.Index(resp.Body, `"code":"`)+len(`"code":"`):]
	code = code[:strings.Index(code, `"`)]

	resp, _ = a.HandleRequest(ctx, request("POST", "/videos/download", `{"token":"`+code+`","videoId":"v1"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	require.Contains(t, resp.Body, "https://bucket.example.com/final.mp4")

	usage := request("GET", "/api/admin/tokens/"+code+"/usage", "")
	usage.Headers["Authorization"] = "Bearer " + adminToken
	resp, _ = a.HandleRequest(ctx, usage)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	require.Contains(t, resp.Body, "198.51.100.20")

	stats := request("GET", "/admin/stats", "")
	stats.Headers["Authorization"] = "Bearer " + adminToken
	resp, _ = a.HandleRequest(ctx, stats)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Body, `"totalDownloads":1`)

	resp, _ = a.HandleRequest(ctx, request("DELETE", "/admin/tokens", ""))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleRequest_RateLimitsPublicEndpoints(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))
	ctx := context.Background()

	for range 3 {
		resp, _ := a.HandleRequest(ctx, request("POST", "/tokens/validate", `{"token":"NOPE"}`))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := a.HandleRequest(ctx, request("POST", "/tokens/validate", `{"token":"NOPE"}`))
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	other := request("POST", "/tokens/validate", `{"token":"NOPE"}`)
	other.Headers["X-Forwarded-For"] = "203.0.113.99"
	resp, _ = a.HandleRequest(ctx, other)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
