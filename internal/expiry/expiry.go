// Package expiry drives the periodic mailbox sweep on a ticker and stops
// on ctx.Done(), the same shutdown signal internal/metrics.PrometheusServer
// and internal/server.Server watch.
package expiry

import (
	"context"
	"time"

	"github.com/affinidi-community/didcomm-mediator/internal/account"
	"github.com/affinidi-community/didcomm-mediator/internal/logging"
	"github.com/affinidi-community/didcomm-mediator/internal/mailbox"
)

// Sweeper periodically removes expired messages and reclaims accounts
// that exist only because they were auto-created on a single transient
// send and never accumulated any mailbox traffic.
type Sweeper struct {
	mailboxes *mailbox.Store
	accounts  *account.Store
	interval  time.Duration
	batch     int64
}

func New(mailboxes *mailbox.Store, accounts *account.Store, interval time.Duration) *Sweeper {
	return &Sweeper{mailboxes: mailboxes, accounts: accounts, interval: interval, batch: 200}
}

// Run ticks until ctx is canceled, sweeping expired messages each tick and
// logging the count removed. It never returns a transport-style error; a
// single failed tick is logged and the sweep continues on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := s.tick(ctx, now); err != nil {
				logging.FromContext(ctx).Error("expiry sweep failed", "error", err)
			}
		}
	}
}

func (s *Sweeper) tick(ctx context.Context, now time.Time) error {
	removed, err := s.mailboxes.SweepExpired(ctx, now.UnixMilli())
	if err != nil {
		return err
	}
	if removed > 0 {
		logging.FromContext(ctx).Debug("expiry sweep removed messages", "count", removed)
	}
	return s.sweepEmptyAutoCreatedAccounts(ctx)
}

// sweepEmptyAutoCreatedAccounts removes every TypeUnknown account whose
// send and receive queues are both empty: these exist solely because an
// envelope named them as a recipient before they ever
// registered, and are reclaimed once their one transient send has
// expired.
func (s *Sweeper) sweepEmptyAutoCreatedAccounts(ctx context.Context) error {
	cursor := uint64(0)
	for {
		page, err := s.accounts.List(ctx, cursor, s.batch)
		if err != nil {
			return err
		}
		for _, hash := range page.Hashes {
			if err := s.reapIfEmptyAutoCreated(ctx, hash); err != nil {
				return err
			}
		}
		cursor = page.Cursor
		if cursor == 0 {
			return nil
		}
	}
}

func (s *Sweeper) reapIfEmptyAutoCreated(ctx context.Context, hash string) error {
	acct, err := s.accounts.Get(ctx, hash)
	if err != nil {
		return err
	}
	if acct.Type != account.TypeUnknown {
		return nil
	}
	recvCount, _, err := s.mailboxes.Counts(ctx, hash)
	if err != nil {
		return err
	}
	if recvCount > 0 {
		return nil
	}
	sendCount, _, err := s.mailboxes.SendCounts(ctx, hash)
	if err != nil {
		return err
	}
	if sendCount > 0 {
		return nil
	}
	return s.accounts.Remove(ctx, hash)
}
