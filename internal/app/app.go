package app

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jun/vidshare/internal/auth"
	"github.com/jun/vidshare/internal/catalog"
	"github.com/jun/vidshare/internal/config"
	"github.com/jun/vidshare/internal/crypto"
	"github.com/jun/vidshare/internal/grant"
	"github.com/jun/vidshare/internal/handler"
	"github.com/jun/vidshare/internal/kv"
	"github.com/jun/vidshare/internal/ledger"
	"github.com/jun/vidshare/internal/logging"
	"github.com/jun/vidshare/internal/redemption"
	"github.com/jun/vidshare/internal/secret"
	"github.com/jun/vidshare/internal/token"
)

// Partition keys within each table.
const (
	tokensPartition = "tokens"
	usagePartition  = "usage"
	videosPartition = "videos"
)

// Deps are the storage and signing collaborators App is built from.
type Deps struct {
	Tokens kv.Table
	Usage  kv.Table
	Videos kv.Table
	Sealer crypto.Sealer
	Grants grant.Issuer
}

// App holds the dependencies for the Lambda function.
type App struct {
	adminHandler     *handler.AdminHandler
	accessHandler    *handler.AccessHandler
	limiter          *handler.RateLimiter
	apiGatewaySecret string
	devMode          bool
	frontendURL      string
	timeout          time.Duration
	logger           zerolog.Logger
}

// NewApp resolves secrets and builds the AWS-backed dependencies described by cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	var resolver secret.Resolver
	if cfg.DevMode {
		resolver = secret.NewEnvResolver()
		logger.Info().Msg("Using EnvResolver (DEV_MODE=true)")
	} else {
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
	}
	if err := cfg.ResolveSecrets(ctx, resolver); err != nil {
		return nil, err
	}

	deps := Deps{
		Grants: grant.NewS3Issuer(s3.NewPresignClient(s3.NewFromConfig(awsCfg)), cfg.VideoBucket),
	}

	if cfg.DevMode {
		deps.Sealer = crypto.NewPlainSealer()
		logger.Info().Msg("Using PlainSealer (DEV_MODE=true)")
	} else {
		deps.Sealer = crypto.NewKMSSealer(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
	}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		deps.Tokens = kv.NewMemoryTable(cfg.Tables.Tokens)
		deps.Usage = kv.NewMemoryTable(cfg.Tables.Usage)
		deps.Videos = kv.NewMemoryTable(cfg.Tables.Videos)
		logger.Warn().Msg("Using in-memory tables; data is lost on restart")
	default:
		client := dynamodb.NewFromConfig(awsCfg)
		deps.Tokens = kv.NewDynamoTable(client, cfg.Tables.Tokens, tokensPartition)
		deps.Usage = kv.NewDynamoTable(client, cfg.Tables.Usage, usagePartition)
		deps.Videos = kv.NewDynamoTable(client, cfg.Tables.Videos, videosPartition)
	}

	return New(cfg, deps, logger)
}

// New wires the services and handlers over deps. cfg.Secrets must already be
// resolved.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) (*App, error) {
	if !cfg.DevMode && cfg.Secrets.APIGatewaySecret == "" {
		return nil, fmt.Errorf("api gateway secret is required outside dev mode")
	}
	adminAuth, err := auth.NewAdminAuth(cfg.Secrets.AdminPasswordHash, cfg.Secrets.JWTSecret)
	if err != nil {
		return nil, err
	}

	tokens := token.NewStore(deps.Tokens)
	videos := catalog.New(deps.Videos)
	usage := ledger.New(deps.Usage, deps.Sealer)
	minter := token.NewMinter(tokens, nil, logging.WithComponent(logger, "minter"))
	coordinator := redemption.NewCoordinator(tokens, videos, usage, deps.Grants, redemption.Options{
		GrantTTL:        grant.DefaultTTL,
		ConsumeAttempts: cfg.ConsumeAttempts,
	}, logging.WithComponent(logger, "redemption"))

	return &App{
		adminHandler:     handler.NewAdminHandler(adminAuth, minter, tokens, videos, usage, cfg.FrontendURL, logging.WithComponent(logger, "admin")),
		accessHandler:    handler.NewAccessHandler(coordinator, logging.WithComponent(logger, "access")),
		limiter:          handler.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		apiGatewaySecret: cfg.Secrets.APIGatewaySecret,
		devMode:          cfg.DevMode,
		frontendURL:      cfg.FrontendURL,
		timeout:          cfg.RequestTimeout,
		logger:           logging.WithComponent(logger, "app"),
	}, nil
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	requestID := uuid.NewString()
	start := time.Now()
	resp := app.route(ctx, req, requestID)
	resp = app.corsResponse(resp)
	resp.Headers["X-Request-Id"] = requestID

	app.logger.Info().
		Str("requestId", requestID).
		Str("method", req.HTTPMethod).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Request")
	return resp, nil
}

func (app *App) route(ctx context.Context, req events.APIGatewayProxyRequest, requestID string) events.APIGatewayProxyResponse {
	method := req.HTTPMethod

	// CORS Preflight
	if method == http.MethodOptions {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}
	}

	// Requests must come through CloudFront, which adds X-Origin-Verify.
	if !app.devMode {
		got := handler.Header(req, "X-Origin-Verify")
		if subtle.ConstantTimeCompare([]byte(got), []byte(app.apiGatewaySecret)) != 1 {
			app.logger.Warn().Str("requestId", requestID).Msg("Security Block: Missing or invalid X-Origin-Verify header")
			return events.APIGatewayProxyResponse{StatusCode: http.StatusForbidden, Body: "Forbidden: Access denied"}
		}
	}

	// Strip /api prefix if present (for CloudFront proxying)
	path := strings.TrimPrefix(req.Path, "/api")
	path = "/" + strings.Trim(path, "/")
	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}

	ctx, cancel := context.WithTimeout(ctx, app.timeout)
	defer cancel()

	switch {
	case path == "/tokens/validate" && (method == http.MethodGet || method == http.MethodPost):
		if !app.limiter.Allow(handler.ClientOrigin(req)) {
			return tooManyRequests()
		}
		return app.must(app.accessHandler.Validate(ctx, req))
	case path == "/videos/download" && method == http.MethodPost:
		if !app.limiter.Allow(handler.ClientOrigin(req)) {
			return tooManyRequests()
		}
		return app.must(app.accessHandler.Download(ctx, req))

	case path == "/admin/login" && method == http.MethodPost:
		return app.must(app.adminHandler.Login(ctx, req))
	case path == "/admin/generate-session-token" && method == http.MethodPost:
		return app.must(app.adminHandler.GenerateSessionToken(ctx, req))
	case path == "/admin/tokens" && method == http.MethodGet:
		return app.must(app.adminHandler.ListTokens(ctx, req))
	case path == "/admin/videos" && method == http.MethodGet:
		return app.must(app.adminHandler.ListVideos(ctx, req))
	case path == "/admin/videos" && method == http.MethodPost:
		return app.must(app.adminHandler.RegisterVideo(ctx, req))
	case path == "/admin/stats" && method == http.MethodGet:
		return app.must(app.adminHandler.Stats(ctx, req))
	}

	// /admin/tokens/{code}/usage
	if rest, ok := strings.CutPrefix(path, "/admin/tokens/"); ok && method == http.MethodGet {
		if code, ok := strings.CutSuffix(rest, "/usage"); ok && code != "" && !strings.Contains(code, "/") {
			req.PathParameters["code"] = code
			return app.must(app.adminHandler.TokenUsage(ctx, req))
		}
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("Not Found: %s %s", method, path),
	}
}

func tooManyRequests() events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusTooManyRequests,
		Headers:    map[string]string{"Content-Type": "application/json", "Retry-After": "1"},
		Body:       `{"error":"Rate limit exceeded. Please try again later."}`,
	}
}

// corsResponse adds CORS headers to an API Gateway response.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.frontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization"
	return resp
}

// must unwraps a handler response, logging the error.
func (app *App) must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		app.logger.Error().Err(err).Msg("Handler error")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
