package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jun/vidshare/internal/handler"
)

func TestAdminLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.admin.Login(ctx, makeRequest("POST", "/admin/login", `{"password":"`+testPassword+`"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	var body struct {
		Token     string `json:"token"`
		ExpiresIn string `json:"expiresIn"`
	}
	decode(t, resp, &body)
	require.NotEmpty(t, body.Token)
	require.Equal(t, "24h", body.ExpiresIn)

	_, err = e.auth.Verify(body.Token)
	require.NoError(t, err)
}

func TestAdminLogin_Rejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, _ := e.admin.Login(ctx, makeRequest("POST", "/admin/login", `{"password":"nope"}`))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.admin.Login(ctx, makeRequest("POST", "/admin/login", `{}`))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerateSessionToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := makeAdminRequest(t, e, "POST", "/admin/generate-session-token", `{"sessionName":"Spring Cup","videoIds":["v1","v2"],"maxDownloads":5}`)
	resp, err := e.admin.GenerateSessionToken(ctx, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)

	var body struct {
		Success      bool `json:"success"`
		SessionToken struct {
			Code         string `json:"code"`
			MaxDownloads int    `json:"maxDownloads"`
			VideoCount   int    `json:"videoCount"`
			ShareMessage string `json:"shareMessage"`
		} `json:"sessionToken"`
	}
	decode(t, resp, &body)
	require.True(t, body.Success)
	require.Regexp(t, `^SPRING-CUP-`, body.SessionToken.Code)
	require.Equal(t, 5, body.SessionToken.MaxDownloads)
	require.Equal(t, 2, body.SessionToken.VideoCount)
	require.Contains(t, body.SessionToken.ShareMessage, "https://videos.example.com")

	stored, err := e.tokens.Get(ctx, body.SessionToken.Code)
	require.NoError(t, err)
	require.Equal(t, "admin", stored.CreatedBy)
}

func TestGenerateSessionToken_ExplicitZeroAndOmitted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	mint := func(body string) int {
		resp, _ := e.admin.GenerateSessionToken(ctx, makeAdminRequest(t, e, "POST", "/admin/generate-session-token", body))
		require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
		var out struct {
			SessionToken struct {
				MaxDownloads int `json:"maxDownloads"`
			} `json:"sessionToken"`
		}
		decode(t, resp, &out)
		return out.SessionToken.MaxDownloads
	}

	zero := mint(`{"sessionName":"Cup","videoIds":["v1"],"maxDownloads":0}`)
	require.Equal(t, 0, zero)

	omitted := mint(`{"sessionName":"Cup","videoIds":["v1"]}`)
	require.Equal(t, 100, omitted)

	resp, _ := e.admin.GenerateSessionToken(ctx, makeAdminRequest(t, e, "POST", "/admin/generate-session-token", `{"sessionName":"Cup","videoIds":["v1"],"expiryDays":0}`))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, resp.Body, "VALIDATION_ERROR")
}

func TestGenerateSessionToken_EmptyVideos(t *testing.T) {
	e := newEnv(t)

	req := makeAdminRequest(t, e, "POST", "/admin/generate-session-token", `{"sessionName":"Cup","videoIds":[]}`)
	resp, _ := e.admin.GenerateSessionToken(context.Background(), req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, resp.Body, "VALIDATION_ERROR")
}

func TestAdminEndpoints_Unauthorized(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	calls := map[string]func() (int, error){
		"generate": func() (int, error) {
			r, err := e.admin.GenerateSessionToken(ctx, makeRequest("POST", "/admin/generate-session-token", `{}`))
			return r.StatusCode, err
		},
		"tokens": func() (int, error) {
			r, err := e.admin.ListTokens(ctx, makeRequest("GET", "/admin/tokens", ""))
			return r.StatusCode, err
		},
		"videos": func() (int, error) {
			r, err := e.admin.ListVideos(ctx, makeRequest("GET", "/admin/videos", ""))
			return r.StatusCode, err
		},
		"stats": func() (int, error) {
			req := makeRequest("GET", "/admin/stats", "")
			req.Headers["Authorization"] = "Bearer forged"
			r, err := e.admin.Stats(ctx, req)
			return r.StatusCode, err
		},
	}
	for name, call := range calls {
		status, err := call()
		require.NoError(t, err, name)
		require.Equal(t, http.StatusUnauthorized, status, name)
	}
}

func TestAdminSessionCookie(t *testing.T) {
	e := newEnv(t)
	req := makeRequest("GET", "/admin/videos", "")
	req.Headers["Cookie"] = "theme=dark; admin_session=" + e.adminToken(t)

	resp, _ := e.admin.ListVideos(context.Background(), req)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
}

func TestListTokensAndStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, "LIVE", 48*time.Hour, 10, 3, `["v1"]`)
	e.seed(t, "DONE", 48*time.Hour, 2, 2, "*")
	e.seed(t, "BAD", 48*time.Hour, 2, 0, "v1")

	resp, _ := e.admin.ListTokens(ctx, makeAdminRequest(t, e, "GET", "/admin/tokens", ""))
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	var list struct {
		Count  int `json:"count"`
		Tokens []struct {
			Code   string `json:"code"`
			Valid  bool   `json:"valid"`
			Reason string `json:"reason"`
		} `json:"tokens"`
	}
	decode(t, resp, &list)
	require.Equal(t, 3, list.Count)

	reasons := map[string]string{}
	for _, tok := range list.Tokens {
		reasons[tok.Code] = tok.Reason
		require.Equal(t, tok.Code == "LIVE", tok.Valid, tok.Code)
	}
	require.Equal(t, "DOWNLOAD_LIMIT_REACHED", reasons["DONE"])
	require.Equal(t, "CONFIG_ERROR", reasons["BAD"])

	resp, _ = e.admin.Stats(ctx, makeAdminRequest(t, e, "GET", "/admin/stats", ""))
	var stats struct {
		TotalVideos    int `json:"totalVideos"`
		ActiveTokens   int `json:"activeTokens"`
		TotalDownloads int `json:"totalDownloads"`
	}
	decode(t, resp, &stats)
	require.Equal(t, 2, stats.TotalVideos)
	require.Equal(t, 2, stats.ActiveTokens)
	require.Equal(t, 5, stats.TotalDownloads)
}

func TestRegisterAndListVideos(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := makeAdminRequest(t, e, "POST", "/admin/videos", `{"videoId":"v3","title":"Final","fileName":"final.mp4","fileSize":2048}`)
	resp, _ := e.admin.RegisterVideo(ctx, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)

	resp, _ = e.admin.RegisterVideo(ctx, makeAdminRequest(t, e, "POST", "/admin/videos", `{"videoId":"v4"}`))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.admin.ListVideos(ctx, makeAdminRequest(t, e, "GET", "/admin/videos", ""))
	var body struct {
		Count int `json:"count"`
	}
	decode(t, resp, &body)
	require.Equal(t, 3, body.Count)
}

func TestTokenUsage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, "CUP", time.Hour, 5, 0, "*")

	dl := makeRequest("POST", "/videos/download", `{"token":"CUP","videoId":"v1"}`)
	dl.Headers["X-Forwarded-For"] = "198.51.100.7, 10.0.0.1"
	resp, _ := e.access.Download(ctx, dl)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	req := makeAdminRequest(t, e, "GET", "/admin/tokens/CUP/usage", "")
	req.PathParameters["code"] = "CUP"
	resp, _ = e.admin.TokenUsage(ctx, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	var body struct {
		Usage []struct {
			VideoID string `json:"videoId"`
			Origin  string `json:"origin"`
		} `json:"usage"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Usage, 1)
	require.Equal(t, "v1", body.Usage[0].VideoID)
	require.Equal(t, "198.51.100.7", body.Usage[0].Origin)
}

func TestClientOrigin(t *testing.T) {
	req := makeRequest("GET", "/", "")
	req.RequestContext.Identity.SourceIP = "203.0.113.1"
	require.Equal(t, "203.0.113.1", handler.ClientOrigin(req))

	req.Headers["x-forwarded-for"] = " 192.0.2.4 ,10.0.0.2"
	require.Equal(t, "192.0.2.4", handler.ClientOrigin(req))
}
