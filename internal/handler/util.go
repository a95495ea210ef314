package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/vidshare/internal/apperr"
	"github.com/jun/vidshare/internal/auth"
)

// sessionCookie is the cookie the admin UI may carry its token in.
const sessionCookie = "admin_session"

var errUnauthorized = errors.New("no authorization token found")

// Header does a case-insensitive header lookup.
func Header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// BearerToken extracts the admin token from the Authorization header or the
// session cookie.
func BearerToken(req events.APIGatewayProxyRequest) string {
	if h := Header(req, "Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	// Cookie format: admin_session=xxx; ...
	for part := range strings.SplitSeq(Header(req, "Cookie"), ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, sessionCookie+"="); ok {
			return v
		}
	}
	return ""
}

// RequireAdmin verifies the request's admin session.
func RequireAdmin(req events.APIGatewayProxyRequest, verifier auth.Verifier) (*auth.AdminClaims, error) {
	token := BearerToken(req)
	if token == "" {
		return nil, errUnauthorized
	}
	return verifier.Verify(token)
}

// ClientOrigin is the first X-Forwarded-For hop, falling back to the source IP
// API Gateway saw.
func ClientOrigin(req events.APIGatewayProxyRequest) string {
	if xff := Header(req, "X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := req.RequestContext.Identity.SourceIP; ip != "" {
		return ip
	}
	return "unknown"
}

func decodeBody(req events.APIGatewayProxyRequest, v any) error {
	body := req.Body
	if req.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return fmt.Errorf("invalid base64 body: %w", err)
		}
		body = string(raw)
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("empty request body")
	}
	return json.Unmarshal([]byte(body), v)
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: `{"error":"Failed to encode response"}`}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

type errorBody struct {
	Error     string        `json:"error"`
	Reason    apperr.Reason `json:"reason,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func errorResponse(status int, message string) events.APIGatewayProxyResponse {
	return jsonResponse(status, errorBody{Error: message, Timestamp: time.Now().UTC()})
}

// ErrorResponse renders err with the status and reason code its apperr kind
// maps to. Upstream and unclassified failures do not leak their cause.
func ErrorResponse(err error) events.APIGatewayProxyResponse {
	status := apperr.HTTPStatus(err)
	e, ok := apperr.As(err)
	if !ok {
		return errorResponse(http.StatusInternalServerError, "Internal server error")
	}
	message := e.Message
	switch e.Kind {
	case apperr.KindConfig:
		message = "Invalid access code configuration"
	case apperr.KindUpstream:
		if message == "" {
			message = "Upstream service failure"
		}
	}
	return jsonResponse(status, errorBody{Error: message, Reason: e.Reason, Timestamp: time.Now().UTC()})
}

func unauthorized() events.APIGatewayProxyResponse {
	return errorResponse(http.StatusUnauthorized, "Unauthorized")
}
