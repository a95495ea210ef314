package token

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/jun/vidshare/internal/apperr"
	"github.com/jun/vidshare/internal/kv"
	"github.com/jun/vidshare/internal/model"
	"github.com/jun/vidshare/internal/policy"
)

const (
	DefaultMaxDownloads = 100
	DefaultExpiryDays   = 7

	mintAttempts = 5
	suffixLen    = 4
	// No 0/O or 1/I/L, so codes survive being read aloud or retyped.
	suffixAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	fallbackPrefix = "CODE"
)

// MintRequest carries the admin-supplied parameters for a new code. A nil
// MaxDownloads or ExpiryDays selects the default; an explicit value is used
// as given.
type MintRequest struct {
	SessionName  string
	VideoIDs     []string
	Description  string
	MaxDownloads *int
	ExpiryDays   *int
	CreatedBy    string
}

// Minter creates new access codes.
type Minter struct {
	store  *Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewMinter creates a Minter. A nil now uses time.Now.
func NewMinter(store *Store, now func() time.Time, logger zerolog.Logger) *Minter {
	if now == nil {
		now = time.Now
	}
	return &Minter{store: store, now: now, logger: logger}
}

func (r MintRequest) validate() (name string, ids []string, err error) {
	name = strings.TrimSpace(r.SessionName)
	if name == "" {
		return "", nil, apperr.Validation("sessionName is required")
	}
	for _, id := range r.VideoIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", nil, apperr.Validation("videoIds must contain at least one video")
	}
	if r.MaxDownloads != nil && *r.MaxDownloads < 0 {
		return "", nil, apperr.Validation("maxDownloads must not be negative")
	}
	if r.ExpiryDays != nil && *r.ExpiryDays < 1 {
		return "", nil, apperr.Validation("expiryDays must be at least 1")
	}
	return name, ids, nil
}

// Mint validates req, builds a token and persists it under a fresh code. A
// duplicate code is retried with a new suffix. Nothing is stored unless the
// returned error is nil.
func (m *Minter) Mint(ctx context.Context, req MintRequest) (*model.AccessToken, error) {
	name, ids, err := req.validate()
	if err != nil {
		return nil, err
	}

	maxDownloads := DefaultMaxDownloads
	if req.MaxDownloads != nil {
		maxDownloads = *req.MaxDownloads
	}
	expiryDays := DefaultExpiryDays
	if req.ExpiryDays != nil {
		expiryDays = *req.ExpiryDays
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = name + " - Session Videos"
	}

	now := m.now().UTC()
	t := model.AccessToken{
		ExpiresAt:     now.AddDate(0, 0, expiryDays),
		MaxDownloads:  maxDownloads,
		AllowedVideos: policy.NewScope(ids).Encode(),
		Description:   description,
		CreatedAt:     now,
		CreatedBy:     req.CreatedBy,
	}

	prefix := CodePrefix(name)
	for range mintAttempts {
		suffix, err := randomSuffix()
		if err != nil {
			return nil, apperr.Upstream("failed to generate code", err)
		}
		t.Code = fmt.Sprintf("%s-%s-%s", prefix, now.Format("0102"), suffix)

		created, err := m.store.Create(ctx, t)
		if err == nil {
			m.logger.Info().Str("code", created.Code).Int("videos", len(ids)).Str("createdBy", req.CreatedBy).Msg("Minted access code")
			return created, nil
		}
		if !errors.Is(err, kv.ErrAlreadyExists) {
			return nil, apperr.Upstream("failed to store access code", err)
		}
		m.logger.Debug().Str("code", t.Code).Msg("Code collision, retrying")
	}
	return nil, apperr.Upstream("failed to generate a unique code", kv.ErrAlreadyExists)
}

// CodePrefix upper-cases name and collapses each run of non-alphanumeric
// characters into a single "-", trimming them at both ends.
func CodePrefix(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToUpper(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return fallbackPrefix
	}
	return b.String()
}

func randomSuffix() (string, error) {
	buf := make([]byte, suffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, v := range buf {
		buf[i] = suffixAlphabet[int(v)%len(suffixAlphabet)]
	}
	return string(buf), nil
}

// ShareMessage is the text an admin pastes to recipients.
func ShareMessage(t model.AccessToken, frontendURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your access code: %s\n", t.Code)
	if frontendURL != "" {
		fmt.Fprintf(&b, "Download your videos at: %s\n", frontendURL)
	}
	fmt.Fprintf(&b, "Valid until %s for up to %d downloads.", t.ExpiresAt.Format("January 2, 2006"), t.MaxDownloads)
	return b.String()
}
