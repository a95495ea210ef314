package handler

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/jun/vidshare/internal/apperr"
	"github.com/jun/vidshare/internal/auth"
	"github.com/jun/vidshare/internal/model"
	"github.com/jun/vidshare/internal/policy"
	"github.com/jun/vidshare/internal/token"
)

type Authenticator interface {
	auth.Verifier
	Login(password string) (*auth.Session, error)
}

type Minter interface {
	Mint(ctx context.Context, req token.MintRequest) (*model.AccessToken, error)
}

type TokenLister interface {
	List(ctx context.Context) iter.Seq2[model.AccessToken, error]
}

type VideoCatalog interface {
	List(ctx context.Context) iter.Seq2[model.VideoRecord, error]
	Register(ctx context.Context, v model.VideoRecord) (*model.VideoRecord, error)
}

type UsageLog interface {
	ListForCode(ctx context.Context, code string) ([]model.UsageRecord, error)
}

// AdminHandler serves the /admin endpoints. Everything except Login requires
// a valid admin session.
type AdminHandler struct {
	auth        Authenticator
	minter      Minter
	tokens      TokenLister
	videos      VideoCatalog
	usage       UsageLog
	frontendURL string
	now         func() time.Time
	logger      zerolog.Logger
}

func NewAdminHandler(a Authenticator, minter Minter, tokens TokenLister, videos VideoCatalog, usage UsageLog, frontendURL string, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		auth:        a,
		minter:      minter,
		tokens:      tokens,
		videos:      videos,
		usage:       usage,
		frontendURL: frontendURL,
		now:         time.Now,
		logger:      logger,
	}
}

// Login handles POST /admin/login.
func (h *AdminHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body struct {
		Password string `json:"password"`
	}
	if err := decodeBody(req, &body); err != nil || body.Password == "" {
		return errorResponse(http.StatusBadRequest, "Password is required"), nil
	}

	session, err := h.auth.Login(body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Warn().Str("origin", ClientOrigin(req)).Msg("Failed admin login")
			return errorResponse(http.StatusUnauthorized, "Invalid credentials"), nil
		}
		return errorResponse(http.StatusInternalServerError, "Login failed"), nil
	}

	return jsonResponse(http.StatusOK, map[string]any{
		"success":   true,
		"token":     session.Token,
		"expiresAt": session.ExpiresAt.UTC(),
		"expiresIn": "24h",
	}), nil
}

type sessionToken struct {
	Code         string    `json:"code"`
	Description  string    `json:"description"`
	ExpiresAt    time.Time `json:"expiresAt"`
	MaxDownloads int       `json:"maxDownloads"`
	VideoCount   int       `json:"videoCount"`
	ShareMessage string    `json:"shareMessage"`
}

// GenerateSessionToken handles POST /admin/generate-session-token.
func (h *AdminHandler) GenerateSessionToken(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	claims, err := RequireAdmin(req, h.auth)
	if err != nil {
		return unauthorized(), nil
	}

	var body struct {
		SessionName  string   `json:"sessionName"`
		VideoIDs     []string `json:"videoIds"`
		Description  string   `json:"description"`
		MaxDownloads *int     `json:"maxDownloads"`
		ExpiryDays   *int     `json:"expiryDays"`
	}
	if err := decodeBody(req, &body); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	tok, err := h.minter.Mint(ctx, token.MintRequest{
		SessionName:  body.SessionName,
		VideoIDs:     body.VideoIDs,
		Description:  body.Description,
		MaxDownloads: body.MaxDownloads,
		ExpiryDays:   body.ExpiryDays,
		CreatedBy:    claims.AdminID,
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindValidation {
			h.logger.Error().Err(err).Msg("Failed to mint access code")
		}
		return ErrorResponse(err), nil
	}

	videoCount := 0
	if scope, err := policy.ScopeOf(*tok); err == nil {
		videoCount = len(scope.IDs())
	}
	return jsonResponse(http.StatusCreated, map[string]any{
		"success": true,
		"sessionToken": sessionToken{
			Code:         tok.Code,
			Description:  tok.Description,
			ExpiresAt:    tok.ExpiresAt,
			MaxDownloads: tok.MaxDownloads,
			VideoCount:   videoCount,
			ShareMessage: token.ShareMessage(*tok, h.frontendURL),
		},
	}), nil
}

type tokenSummary struct {
	Code               string          `json:"code"`
	Description        string          `json:"description"`
	ExpiresAt          time.Time       `json:"expiresAt"`
	MaxDownloads       int             `json:"maxDownloads"`
	CurrentDownloads   int             `json:"currentDownloads"`
	AllowedVideos      any             `json:"allowedVideos"`
	CreatedAt          time.Time       `json:"createdAt"`
	CreatedBy          string          `json:"createdBy"`
	Valid              bool            `json:"valid"`
	Reason             apperr.Reason   `json:"reason,omitempty"`
	DownloadsRemaining int             `json:"downloadsRemaining"`
	DaysRemaining      int             `json:"daysRemaining"`
	WarningLevel       policy.Severity `json:"warningLevel"`
}

func (h *AdminHandler) summarizeToken(t model.AccessToken, now time.Time) tokenSummary {
	remaining := policy.RemainingFor(t, now)
	s := tokenSummary{
		Code:               t.Code,
		Description:        t.Description,
		ExpiresAt:          t.ExpiresAt,
		MaxDownloads:       t.MaxDownloads,
		CurrentDownloads:   t.CurrentDownloads,
		AllowedVideos:      t.AllowedVideos,
		CreatedAt:          t.CreatedAt,
		CreatedBy:          t.CreatedBy,
		Reason:             policy.Denial(t, now),
		DownloadsRemaining: remaining.DownloadsRemaining,
		DaysRemaining:      remaining.DaysRemaining,
		WarningLevel:       policy.Classify(remaining).Severity,
	}
	s.Valid = s.Reason == ""
	if scope, err := policy.ScopeOf(t); err != nil {
		s.Valid = false
		s.Reason = apperr.ReasonConfig
	} else if !scope.All() {
		s.AllowedVideos = scope.IDs()
	}
	return s
}

// ListTokens handles GET /admin/tokens, newest first.
func (h *AdminHandler) ListTokens(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := RequireAdmin(req, h.auth); err != nil {
		return unauthorized(), nil
	}

	now := h.now()
	var out []tokenSummary
	for t, err := range h.tokens.List(ctx) {
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to list access codes")
			return errorResponse(http.StatusBadGateway, "Failed to list access codes"), nil
		}
		out = append(out, h.summarizeToken(t, now))
	}
	slices.SortFunc(out, func(a, b tokenSummary) int { return b.CreatedAt.Compare(a.CreatedAt) })

	return jsonResponse(http.StatusOK, map[string]any{"tokens": out, "count": len(out)}), nil
}

// TokenUsage handles GET /admin/tokens/{code}/usage.
func (h *AdminHandler) TokenUsage(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := RequireAdmin(req, h.auth); err != nil {
		return unauthorized(), nil
	}
	code := strings.TrimSpace(req.PathParameters["code"])
	if code == "" {
		return errorResponse(http.StatusBadRequest, "Missing code"), nil
	}

	records, err := h.usage.ListForCode(ctx, code)
	if err != nil {
		h.logger.Error().Err(err).Str("code", code).Msg("Failed to read usage")
		return errorResponse(http.StatusBadGateway, "Failed to read usage"), nil
	}
	if records == nil {
		records = []model.UsageRecord{}
	}
	return jsonResponse(http.StatusOK, map[string]any{"code": code, "usage": records}), nil
}

// ListVideos handles GET /admin/videos.
func (h *AdminHandler) ListVideos(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := RequireAdmin(req, h.auth); err != nil {
		return unauthorized(), nil
	}

	videos := []model.VideoRecord{}
	for v, err := range h.videos.List(ctx) {
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to list videos")
			return errorResponse(http.StatusBadGateway, "Failed to list videos"), nil
		}
		videos = append(videos, v)
	}
	return jsonResponse(http.StatusOK, map[string]any{"videos": videos, "count": len(videos)}), nil
}

// RegisterVideo handles POST /admin/videos. The object must already be in the
// bucket; only metadata is recorded.
func (h *AdminHandler) RegisterVideo(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	claims, err := RequireAdmin(req, h.auth)
	if err != nil {
		return unauthorized(), nil
	}

	var body model.VideoRecord
	if err := decodeBody(req, &body); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	body.UploadedBy = claims.AdminID

	v, err := h.videos.Register(ctx, body)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindValidation {
			h.logger.Error().Err(err).Msg("Failed to register video")
		}
		return ErrorResponse(err), nil
	}
	return jsonResponse(http.StatusCreated, v), nil
}

// Stats handles GET /admin/stats. totalDownloads sums the access code
// counters, which are the authoritative count.
func (h *AdminHandler) Stats(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := RequireAdmin(req, h.auth); err != nil {
		return unauthorized(), nil
	}

	now := h.now()
	var totalVideos, activeTokens, totalDownloads int
	for _, err := range h.videos.List(ctx) {
		if err != nil {
			return errorResponse(http.StatusBadGateway, "Failed to list videos"), nil
		}
		totalVideos++
	}
	for t, err := range h.tokens.List(ctx) {
		if err != nil {
			return errorResponse(http.StatusBadGateway, "Failed to list access codes"), nil
		}
		if policy.IsValid(t, now) {
			activeTokens++
		}
		totalDownloads += t.CurrentDownloads
	}

	return jsonResponse(http.StatusOK, map[string]any{
		"totalVideos":    totalVideos,
		"activeTokens":   activeTokens,
		"totalDownloads": totalDownloads,
	}), nil
}
