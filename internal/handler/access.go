package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/jun/vidshare/internal/apperr"
	"github.com/jun/vidshare/internal/model"
	"github.com/jun/vidshare/internal/policy"
	"github.com/jun/vidshare/internal/redemption"
)

// Redeemer is implemented by *redemption.Coordinator.
type Redeemer interface {
	Redeem(ctx context.Context, code, videoID, origin string) (*redemption.Result, error)
	CheckStatus(ctx context.Context, code string) (*redemption.Status, error)
}

// AccessHandler serves the recipient-facing endpoints.
type AccessHandler struct {
	redeemer Redeemer
	logger   zerolog.Logger
}

func NewAccessHandler(redeemer Redeemer, logger zerolog.Logger) *AccessHandler {
	return &AccessHandler{redeemer: redeemer, logger: logger}
}

type videoSummary struct {
	VideoID     string    `json:"videoId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	FileName    string    `json:"fileName"`
	FileSize    int64     `json:"fileSize"`
	UploadDate  time.Time `json:"uploadDate"`
}

type tokenData struct {
	Code               string          `json:"code"`
	Description        string          `json:"description"`
	ExpiresAt          time.Time       `json:"expiresAt"`
	MaxDownloads       int             `json:"maxDownloads"`
	CurrentDownloads   int             `json:"currentDownloads"`
	DownloadsRemaining int             `json:"downloadsRemaining"`
	DaysRemaining      int             `json:"daysRemaining"`
	ExpirationWarning  string          `json:"expirationWarning"`
	WarningLevel       policy.Severity `json:"warningLevel"`
	AllowedVideos      []videoSummary  `json:"allowedVideos"`
}

type validateResponse struct {
	Valid     bool          `json:"valid"`
	Message   string        `json:"message,omitempty"`
	Reason    apperr.Reason `json:"reason,omitempty"`
	TokenData *tokenData    `json:"tokenData,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Validate handles GET|POST /tokens/validate. An unknown or unusable code is
// a 200 with valid=false and the reason, so the page can explain it.
func (h *AccessHandler) Validate(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body struct {
		Token string `json:"token"`
	}
	if req.HTTPMethod == http.MethodGet {
		body.Token = req.QueryStringParameters["token"]
	} else if err := decodeBody(req, &body); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	code := strings.TrimSpace(body.Token)
	if code == "" {
		return errorResponse(http.StatusBadRequest, "Token is required"), nil
	}

	status, err := h.redeemer.CheckStatus(ctx, code)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound:
			return jsonResponse(http.StatusOK, validateResponse{Valid: false, Message: "Invalid access code", Reason: apperr.ReasonNotFound, Timestamp: time.Now().UTC()}), nil
		case apperr.KindForbidden:
			e, _ := apperr.As(err)
			return jsonResponse(http.StatusOK, validateResponse{Valid: false, Message: e.Message, Reason: e.Reason, Timestamp: time.Now().UTC()}), nil
		}
		h.logger.Error().Err(err).Str("code", code).Msg("Validation failed")
		return ErrorResponse(err), nil
	}

	tok := status.Token
	description := tok.Description
	if description == "" {
		description = "Download access code"
	}
	data := &tokenData{
		Code:               tok.Code,
		Description:        description,
		ExpiresAt:          tok.ExpiresAt,
		MaxDownloads:       tok.MaxDownloads,
		CurrentDownloads:   tok.CurrentDownloads,
		DownloadsRemaining: status.Remaining.DownloadsRemaining,
		DaysRemaining:      status.Remaining.DaysRemaining,
		ExpirationWarning:  status.Warning.Message,
		WarningLevel:       status.Warning.Severity,
		AllowedVideos:      summarize(status.Videos),
	}
	return jsonResponse(http.StatusOK, validateResponse{Valid: true, TokenData: data, Timestamp: time.Now().UTC()}), nil
}

func summarize(videos []model.VideoRecord) []videoSummary {
	out := make([]videoSummary, 0, len(videos))
	for _, v := range videos {
		out = append(out, videoSummary{
			VideoID:     v.VideoID,
			Title:       v.Title,
			Description: v.Description,
			FileName:    v.FileName,
			FileSize:    v.FileSize,
			UploadDate:  v.UploadDate,
		})
	}
	return out
}

type tokenStatus struct {
	DownloadsRemaining int             `json:"downloadsRemaining"`
	DaysRemaining      int             `json:"daysRemaining"`
	Warning            string          `json:"warning,omitempty"`
	WarningLevel       policy.Severity `json:"warningLevel"`
}

type downloadResponse struct {
	DownloadURL      string      `json:"downloadUrl"`
	VideoTitle       string      `json:"videoTitle"`
	FileSize         int64       `json:"fileSize"`
	ExpiresInMinutes int         `json:"expiresInMinutes"`
	ExpiresAt        time.Time   `json:"expiresAt"`
	TokenStatus      tokenStatus `json:"tokenStatus"`
	Timestamp        time.Time   `json:"timestamp"`
}

// Download handles POST /videos/download.
func (h *AccessHandler) Download(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body struct {
		Token   string `json:"token"`
		VideoID string `json:"videoId"`
	}
	if err := decodeBody(req, &body); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	code, videoID := strings.TrimSpace(body.Token), strings.TrimSpace(body.VideoID)
	if code == "" || videoID == "" {
		return errorResponse(http.StatusBadRequest, "Token and video ID are required"), nil
	}

	res, err := h.redeemer.Redeem(ctx, code, videoID, ClientOrigin(req))
	if err != nil {
		if k := apperr.KindOf(err); k != apperr.KindNotFound && k != apperr.KindForbidden {
			h.logger.Error().Err(err).Str("code", code).Str("videoId", videoID).Msg("Download failed")
		}
		return ErrorResponse(err), nil
	}

	status := tokenStatus{
		DownloadsRemaining: res.Remaining.DownloadsRemaining,
		DaysRemaining:      res.Remaining.DaysRemaining,
		WarningLevel:       res.Warning.Severity,
	}
	if res.Warning.Severity != policy.SeverityNone {
		status.Warning = res.Warning.Message
	}
	return jsonResponse(http.StatusOK, downloadResponse{
		DownloadURL:      res.Grant.URL,
		VideoTitle:       res.Video.Title,
		FileSize:         res.Video.FileSize,
		ExpiresInMinutes: int(res.GrantTTL / time.Minute),
		ExpiresAt:        res.Grant.ExpiresAt,
		TokenStatus:      status,
		Timestamp:        time.Now().UTC(),
	}), nil
}
