package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/requestline/internal/domain/playback"
	"github.com/Strob0t/requestline/internal/domain/request"
	"github.com/Strob0t/requestline/internal/port/database"
	"github.com/Strob0t/requestline/internal/port/playbackprovider"
)

const recentLimit = 10

// displayBuilder fetches a tenant's playback and reconciles it with the
// tenant's approved and played requests.
type displayBuilder struct {
	store    database.RequestStore
	provider playbackprovider.Provider
	timeout  time.Duration
}

// fetch reads current playback and the queue in parallel. A nil snapshot
// with a nil error means nothing is playing.
func (b *displayBuilder) fetch(ctx context.Context, tenantID string) (*playback.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var (
		snap  *playback.Snapshot
		queue []playback.Track
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = b.provider.GetCurrentPlayback(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		queue, err = b.provider.GetQueue(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if snap == nil {
		if len(queue) == 0 {
			return nil, nil
		}
		snap = &playback.Snapshot{}
	}
	snap.Queue = queue
	return snap, nil
}

// upcoming lists approved and queued requests in play order.
func (b *displayBuilder) upcoming(ctx context.Context, tenantID string) ([]playback.Candidate, []request.Request, error) {
	reqs, err := b.store.ListRequests(ctx, tenantID, request.ListFilter{
		Statuses: request.Upcoming,
		Order:    request.OrderApproved,
	})
	if err != nil {
		return nil, nil, err
	}
	return candidates(reqs), reqs, nil
}

// annotate builds the display view of snap for tenantID.
func (b *displayBuilder) annotate(ctx context.Context, tenantID string, snap *playback.Snapshot) (*playback.Display, error) {
	up, _, err := b.upcoming(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	played, err := b.store.ListRequests(ctx, tenantID, request.ListFilter{
		Statuses: []request.Status{request.StatusPlayed},
		Order:    request.OrderPlayedDesc,
		Limit:    recentLimit,
	})
	if err != nil {
		return nil, err
	}
	d := playback.Annotate(snap, up, candidates(played))
	return &d, nil
}

func candidates(reqs []request.Request) []playback.Candidate {
	out := make([]playback.Candidate, len(reqs))
	for i, r := range reqs {
		out[i] = playback.Candidate{RequestID: r.ID, Nickname: r.Nickname, Track: r.Track}
	}
	return out
}
