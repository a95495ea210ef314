// Package policy decides whether a sharing code may be redeemed. Every function
// is pure: callers pass the token and the current time.
package policy

import (
	"fmt"
	"math"
	"time"

	"github.com/jun/vidshare/internal/apperr"
	"github.com/jun/vidshare/internal/model"
)

const day = 24 * time.Hour

// IsTimeExpired reports whether now is strictly after the token's expiry.
func IsTimeExpired(t model.AccessToken, now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsExhausted reports whether every permitted download has been consumed.
func IsExhausted(t model.AccessToken) bool {
	return t.CurrentDownloads >= t.MaxDownloads
}

// IsValid reports whether the token is neither expired nor exhausted.
func IsValid(t model.AccessToken, now time.Time) bool {
	return !IsTimeExpired(t, now) && !IsExhausted(t)
}

// Denial returns the reason the token is unusable, or "" if it is valid.
func Denial(t model.AccessToken, now time.Time) apperr.Reason {
	expired, exhausted := IsTimeExpired(t, now), IsExhausted(t)
	switch {
	case expired && exhausted:
		return apperr.ReasonBothLimitsReached
	case expired:
		return apperr.ReasonTimeExpired
	case exhausted:
		return apperr.ReasonDownloadLimitReached
	default:
		return ""
	}
}

// DenialMessage is the user-facing text for a Denial reason.
func DenialMessage(t model.AccessToken, reason apperr.Reason) string {
	switch reason {
	case apperr.ReasonBothLimitsReached:
		return fmt.Sprintf("Code expired (reached both time limit and %d download limit)", t.MaxDownloads)
	case apperr.ReasonTimeExpired:
		return fmt.Sprintf("Code expired on %s", t.ExpiresAt.UTC().Format("2006-01-02"))
	case apperr.ReasonDownloadLimitReached:
		return fmt.Sprintf("Download limit reached (%d/%d downloads used)", t.CurrentDownloads, t.MaxDownloads)
	case apperr.ReasonVideoNotInScope:
		return "This video is not available with your code"
	default:
		return ""
	}
}

// ScopeOf parses the token's stored scope. A malformed scope is reported as a
// CONFIG_ERROR so it cannot be mistaken for "not in scope".
func ScopeOf(t model.AccessToken) (Scope, error) {
	scope, err := ParseScope(t.AllowedVideos)
	if err != nil {
		return Scope{}, apperr.Config(fmt.Sprintf("code %s has an invalid video scope", t.Code), err)
	}
	return scope, nil
}

// IsVideoInScope reports whether the token admits videoID.
func IsVideoInScope(t model.AccessToken, videoID string) (bool, error) {
	scope, err := ScopeOf(t)
	if err != nil {
		return false, err
	}
	return scope.Contains(videoID), nil
}

// CanRedeem is IsValid AND IsVideoInScope.
func CanRedeem(t model.AccessToken, videoID string, now time.Time) (bool, error) {
	if !IsValid(t, now) {
		return false, nil
	}
	return IsVideoInScope(t, videoID)
}

// CheckValid returns a Forbidden error carrying the Denial reason, or nil.
func CheckValid(t model.AccessToken, now time.Time) error {
	if reason := Denial(t, now); reason != "" {
		return apperr.Forbidden(reason, DenialMessage(t, reason))
	}
	return nil
}

// Check returns nil if the token may be redeemed against videoID. Expiry is
// evaluated before scope, so an expired token never reports VIDEO_NOT_IN_SCOPE.
func Check(t model.AccessToken, videoID string, now time.Time) error {
	if err := CheckValid(t, now); err != nil {
		return err
	}
	inScope, err := IsVideoInScope(t, videoID)
	if err != nil {
		return err
	}
	if !inScope {
		return apperr.Forbidden(apperr.ReasonVideoNotInScope, DenialMessage(t, apperr.ReasonVideoNotInScope))
	}
	return nil
}

// Remaining holds the advisory allowance figures shown to recipients.
type Remaining struct {
	DownloadsRemaining int `json:"downloadsRemaining"`
	DaysRemaining      int `json:"daysRemaining"`
}

// RemainingFor computes the allowance left on t. Days are rounded up, so a code
// expiring later today reports 1. A code that has not expired never reports 0
// days, including at the expiry instant itself. Both figures are clamped at 0.
func RemainingFor(t model.AccessToken, now time.Time) Remaining {
	downloads := max(t.MaxDownloads-t.CurrentDownloads, 0)
	days := int(math.Ceil(float64(t.ExpiresAt.Sub(now)) / float64(day)))
	if IsTimeExpired(t, now) {
		days = 0
	} else {
		days = max(days, 1)
	}
	return Remaining{
		DownloadsRemaining: downloads,
		DaysRemaining:      days,
	}
}
