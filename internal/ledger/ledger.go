// Package ledger is the append-only audit trail of redemptions.
package ledger

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/jun/vidshare/internal/crypto"
	"github.com/jun/vidshare/internal/kv"
	"github.com/jun/vidshare/internal/model"
)

// Ledger appends UsageRecords to a kv.Table. Origins are sealed before they are
// written and opened when read back.
type Ledger struct {
	table  kv.Table
	sealer crypto.Sealer
}

// New creates a Ledger.
func New(table kv.Table, sealer crypto.Sealer) *Ledger {
	return &Ledger{table: table, sealer: sealer}
}

// recordID is code-video-unixmillis plus a short discriminator, since one code
// can be redeemed for the same video twice in the same millisecond.
func recordID(rec model.UsageRecord) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s-%s-%d-%s", rec.Code, rec.VideoID, rec.RedeemedAt.UnixMilli(), suffix)
}

// Append writes one record and returns it with its ID set. Records are never
// overwritten.
func (l *Ledger) Append(ctx context.Context, rec model.UsageRecord) (*model.UsageRecord, error) {
	rec.ID = recordID(rec)

	stored := rec
	sealed, err := l.sealer.Seal(ctx, rec.Origin)
	if err != nil {
		return nil, err
	}
	stored.Origin = sealed

	item, err := kv.Encode(stored)
	if err != nil {
		return nil, err
	}
	if _, err := l.table.Create(ctx, rec.ID, item); err != nil {
		return nil, fmt.Errorf("failed to append usage record: %w", err)
	}
	return &rec, nil
}

// List yields every record with its origin opened.
func (l *Ledger) List(ctx context.Context) iter.Seq2[model.UsageRecord, error] {
	return func(yield func(model.UsageRecord, error) bool) {
		for rec, err := range kv.All[model.UsageRecord](ctx, l.table) {
			if err == nil {
				rec.Origin, err = l.sealer.Open(ctx, rec.Origin)
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// ListForCode returns the records for one code, oldest first.
func (l *Ledger) ListForCode(ctx context.Context, code string) ([]model.UsageRecord, error) {
	var out []model.UsageRecord
	for rec, err := range l.List(ctx) {
		if err != nil {
			return nil, err
		}
		if rec.Code == code {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b model.UsageRecord) int {
		return a.RedeemedAt.Compare(b.RedeemedAt)
	})
	return out, nil
}
