// Package redemption turns an access code into a download grant.
package redemption

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jun/vidshare/internal/apperr"
	"github.com/jun/vidshare/internal/grant"
	"github.com/jun/vidshare/internal/kv"
	"github.com/jun/vidshare/internal/model"
	"github.com/jun/vidshare/internal/policy"
)

// lookupConcurrency bounds parallel catalog reads in CheckStatus.
const lookupConcurrency = 8

type TokenStore interface {
	Get(ctx context.Context, code string) (*model.AccessToken, error)
	Consume(ctx context.Context, code string, check func(model.AccessToken) error, attempts int) (*model.AccessToken, error)
}

type Catalog interface {
	Get(ctx context.Context, videoID string) (*model.VideoRecord, error)
	List(ctx context.Context) iter.Seq2[model.VideoRecord, error]
	IncrementDownloads(ctx context.Context, videoID string, attempts int) error
}

type Ledger interface {
	Append(ctx context.Context, rec model.UsageRecord) (*model.UsageRecord, error)
}

// Result is what a successful redemption hands back to the recipient.
type Result struct {
	Grant     grant.Grant
	GrantTTL  time.Duration
	Video     model.VideoRecord
	Token     model.AccessToken
	Remaining policy.Remaining
	Warning   policy.Warning
}

// Status describes a code without spending it.
type Status struct {
	Token     model.AccessToken
	Remaining policy.Remaining
	Warning   policy.Warning
	Videos    []model.VideoRecord
}

type Options struct {
	GrantTTL        time.Duration
	ConsumeAttempts int
	Now             func() time.Time
}

// Coordinator runs redemptions and status checks against the stores.
type Coordinator struct {
	tokens   TokenStore
	videos   Catalog
	ledger   Ledger
	grants   grant.Issuer
	ttl      time.Duration
	attempts int
	now      func() time.Time
	logger   zerolog.Logger
}

func NewCoordinator(tokens TokenStore, videos Catalog, ledger Ledger, grants grant.Issuer, opts Options, logger zerolog.Logger) *Coordinator {
	if opts.GrantTTL <= 0 {
		opts.GrantTTL = grant.DefaultTTL
	}
	if opts.ConsumeAttempts < 1 {
		opts.ConsumeAttempts = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		tokens:   tokens,
		videos:   videos,
		ledger:   ledger,
		grants:   grants,
		ttl:      opts.GrantTTL,
		attempts: opts.ConsumeAttempts,
		now:      opts.Now,
		logger:   logger,
	}
}

// Redeem spends one download of code on videoID.
//
// The grant is signed before anything is written, so a signing failure costs
// nothing. The download counter is then advanced with a conditional write that
// re-runs the policy check on the latest record; if that fails the grant is
// discarded and the error returned. The usage record and the video's download
// count are written afterwards and their failures are only logged.
func (c *Coordinator) Redeem(ctx context.Context, code, videoID, origin string) (*Result, error) {
	now := c.now()
	log := c.logger.With().Str("code", code).Str("videoId", videoID).Logger()

	tok, err := c.tokens.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := policy.Check(*tok, videoID, now); err != nil {
		log.Info().Str("reason", string(apperr.ReasonOf(err))).Msg("Redemption denied")
		return nil, err
	}

	video, err := c.lookupVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	g, err := c.grants.SignReadURL(ctx, video.FileName, c.ttl)
	if err != nil {
		log.Error().Err(err).Msg("Failed to issue download grant")
		return nil, apperr.Upstream("Failed to generate download link", err)
	}

	updated, err := c.tokens.Consume(ctx, code, func(t model.AccessToken) error {
		return policy.Check(t, videoID, now)
	}, c.attempts)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to consume download")
		return nil, err
	}

	if _, err := c.ledger.Append(ctx, model.UsageRecord{
		Code:       code,
		VideoID:    videoID,
		RedeemedAt: now,
		Origin:     origin,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to append usage record")
	}
	if err := c.videos.IncrementDownloads(ctx, videoID, c.attempts); err != nil {
		log.Error().Err(err).Msg("Failed to increment video download count")
	}

	remaining := policy.RemainingFor(*updated, now)
	log.Info().Int("downloadsRemaining", remaining.DownloadsRemaining).Msg("Download granted")

	return &Result{
		Grant:     g,
		GrantTTL:  c.ttl,
		Video:     *video,
		Token:     *updated,
		Remaining: remaining,
		Warning:   policy.Classify(remaining),
	}, nil
}

func (c *Coordinator) lookupVideo(ctx context.Context, videoID string) (*model.VideoRecord, error) {
	video, err := c.videos.Get(ctx, videoID)
	switch {
	case err == nil:
		return video, nil
	case errors.Is(err, kv.ErrNotFound):
		return nil, apperr.NotFound("Video not found")
	default:
		return nil, apperr.Upstream("Failed to read video", err)
	}
}

// CheckStatus reports whether code is usable and which videos it can fetch.
// It applies the same policy as Redeem and writes nothing.
func (c *Coordinator) CheckStatus(ctx context.Context, code string) (*Status, error) {
	now := c.now()

	tok, err := c.tokens.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := policy.CheckValid(*tok, now); err != nil {
		return nil, err
	}
	scope, err := policy.ScopeOf(*tok)
	if err != nil {
		c.logger.Error().Err(err).Str("code", code).Msg("Stored scope is malformed")
		return nil, err
	}

	var videos []model.VideoRecord
	if scope.All() {
		videos, err = c.listAll(ctx)
	} else {
		videos, err = c.resolve(ctx, scope.IDs())
	}
	if err != nil {
		return nil, err
	}

	remaining := policy.RemainingFor(*tok, now)
	return &Status{
		Token:     *tok,
		Remaining: remaining,
		Warning:   policy.Classify(remaining),
		Videos:    videos,
	}, nil
}

func (c *Coordinator) listAll(ctx context.Context) ([]model.VideoRecord, error) {
	var videos []model.VideoRecord
	for v, err := range c.videos.List(ctx) {
		if err != nil {
			return nil, apperr.Upstream("Failed to list videos", err)
		}
		videos = append(videos, v)
	}
	return videos, nil
}

// resolve looks up ids in parallel, keeping their order and dropping ids that
// no longer exist.
func (c *Coordinator) resolve(ctx context.Context, ids []string) ([]model.VideoRecord, error) {
	found := make([]*model.VideoRecord, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			v, err := c.videos.Get(gctx, id)
			if errors.Is(err, kv.ErrNotFound) {
				c.logger.Debug().Str("videoId", id).Msg("Scoped video no longer exists")
				return nil
			}
			if err != nil {
				return err
			}
			found[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Upstream("Failed to read videos", err)
	}

	videos := make([]model.VideoRecord, 0, len(ids))
	for _, v := range found {
		if v != nil {
			videos = append(videos, *v)
		}
	}
	return videos, nil
}
