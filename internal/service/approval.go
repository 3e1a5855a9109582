package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	rlotel "github.com/Strob0t/requestline/internal/adapter/otel"
	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/domain/change"
	"github.com/Strob0t/requestline/internal/domain/request"
	"github.com/Strob0t/requestline/internal/port/database"
	"github.com/Strob0t/requestline/internal/port/playbackprovider"
)

// TargetSource resolves the tenant's playback device and playlist.
type TargetSource interface {
	Targets(ctx context.Context, tenantID string) (deviceID, playlistID string, err error)
}

// RetryEnqueuer schedules a side-effect retry outside the calling request.
type RetryEnqueuer interface {
	EnqueueRetry(ctx context.Context, tenantID, requestID string) error
}

// Result is a request after one approval cycle, with the per-side-effect outcome.
type Result struct {
	Request *request.Request `json:"request"`
	Outcome request.Outcome  `json:"outcome"`
}

// ApprovalService runs the claim-apply-complete cycle on requests. A claim
// moves exactly one caller's request into processing; external calls happen
// after the claim and their outcome is written by a conditional completion.
type ApprovalService struct {
	store    database.Store
	provider playbackprovider.Provider
	targets  TargetSource
	feed     *ChangeFeed
	timeout  time.Duration
	metrics  *rlotel.Metrics
	retries  RetryEnqueuer
}

// NewApprovalService creates an ApprovalService. timeout bounds each external call.
func NewApprovalService(store database.Store, provider playbackprovider.Provider, targets TargetSource, feed *ChangeFeed, timeout time.Duration) *ApprovalService {
	return &ApprovalService{
		store:    store,
		provider: provider,
		targets:  targets,
		feed:     feed,
		timeout:  timeout,
	}
}

// SetMetrics enables approval counters.
func (s *ApprovalService) SetMetrics(m *rlotel.Metrics) { s.metrics = m }

// SetRetryEnqueuer routes RequestRetry through a background job queue.
func (s *ApprovalService) SetRetryEnqueuer(q RetryEnqueuer) { s.retries = q }

// List returns the tenant's requests.
func (s *ApprovalService) List(ctx context.Context, tenantID string, f request.ListFilter) ([]request.Request, error) {
	return s.store.ListRequests(ctx, tenantID, f)
}

// Get returns one request.
func (s *ApprovalService) Get(ctx context.Context, tenantID, id string) (*request.Request, error) {
	return s.store.GetRequest(ctx, tenantID, id)
}

// Approve claims a pending, rejected or played request and runs the requested
// side effects independently. The request ends approved when any requested
// side effect succeeded (or none was requested) and failed otherwise.
// A concurrent or repeated call fails with ErrAlreadyProcessed.
func (s *ApprovalService) Approve(ctx context.Context, tenantID, id string, opts request.ApproveOptions) (res *Result, err error) {
	ctx, span := rlotel.StartApprovalSpan(ctx, "approve", tenantID, id)
	defer func() { rlotel.EndSpan(span, err) }()

	claimed, err := s.store.ClaimRequest(ctx, tenantID, id, request.ApproveFrom)
	if err != nil {
		return nil, err
	}

	// The claim must be released even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	out := s.apply(ctx, tenantID, claimed, opts.AddToQueue, opts.AddToPlaylist, opts.PlayNext)
	out.Status = out.Resolve()

	done, err := s.store.CompleteRequest(ctx, tenantID, id, request.Completion{
		Status:            out.Status,
		AddedToQueue:      out.Queue.Succeeded,
		AddedToPlaylist:   out.Playlist.Succeeded,
		RequestedQueue:    out.Queue.Requested,
		RequestedPlaylist: out.Playlist.Requested,
		LastError:         out.ErrorText(),
		ApprovedBy:        opts.ApprovedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("complete approval: %w", err)
	}

	s.metrics.Approval(ctx, string(out.Status))
	if out.Status == request.StatusApproved {
		s.feed.Emit(ctx, tenantID, change.KindRequestApproved, done)
	}
	return &Result{Request: done, Outcome: out}, nil
}

// Retry re-runs only the side effects that were requested and have not yet
// succeeded on a failed or partially approved request.
func (s *ApprovalService) Retry(ctx context.Context, tenantID, id string) (res *Result, err error) {
	ctx, span := rlotel.StartApprovalSpan(ctx, "retry", tenantID, id)
	defer func() { rlotel.EndSpan(span, err) }()

	claimed, err := s.store.ClaimRequest(ctx, tenantID, id, request.RetryFrom)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	reqQueue, reqPlaylist := claimed.RequestedQueue, claimed.RequestedPlaylist
	if !reqQueue && !reqPlaylist {
		// An interrupted approval never recorded its options.
		reqQueue = true
	}
	redoQueue := reqQueue && !claimed.AddedToQueue
	redoPlaylist := reqPlaylist && !claimed.AddedToPlaylist
	if !redoQueue && !redoPlaylist {
		if _, err := s.store.CompleteRequest(ctx, tenantID, id, completionOf(claimed, request.StatusApproved)); err != nil {
			return nil, fmt.Errorf("release retry claim: %w", err)
		}
		return nil, fmt.Errorf("request %s: nothing to retry: %w", id, domain.ErrAlreadyProcessed)
	}

	out := s.apply(ctx, tenantID, claimed, redoQueue, redoPlaylist, false)
	out.Queue = merge(reqQueue, claimed.AddedToQueue, out.Queue)
	out.Playlist = merge(reqPlaylist, claimed.AddedToPlaylist, out.Playlist)
	out.Status = out.Resolve()

	done, err := s.store.CompleteRequest(ctx, tenantID, id, request.Completion{
		Status:            out.Status,
		AddedToQueue:      out.Queue.Succeeded,
		AddedToPlaylist:   out.Playlist.Succeeded,
		RequestedQueue:    out.Queue.Requested,
		RequestedPlaylist: out.Playlist.Requested,
		LastError:         out.ErrorText(),
	})
	if err != nil {
		return nil, fmt.Errorf("complete retry: %w", err)
	}

	s.metrics.Approval(ctx, string(out.Status))
	if out.Status == request.StatusApproved {
		s.feed.Emit(ctx, tenantID, change.KindRequestApproved, done)
	}
	return &Result{Request: done, Outcome: out}, nil
}

// RequestRetry enqueues a retry when a job queue is configured and otherwise
// retries inline. It reports whether the retry was deferred.
func (s *ApprovalService) RequestRetry(ctx context.Context, tenantID, id string) (*Result, bool, error) {
	if s.retries == nil {
		res, err := s.Retry(ctx, tenantID, id)
		return res, false, err
	}
	r, err := s.store.GetRequest(ctx, tenantID, id)
	if err != nil {
		return nil, false, err
	}
	if !r.Status.In(request.RetryFrom) {
		return nil, false, fmt.Errorf("request %s (status %s): %w", id, r.Status, domain.ErrAlreadyProcessed)
	}
	if err := s.retries.EnqueueRetry(ctx, tenantID, id); err != nil {
		return nil, false, fmt.Errorf("enqueue retry: %w", err)
	}
	return &Result{Request: r}, true, nil
}

// Reject moves a pending request to rejected. It has no external side effects.
func (s *ApprovalService) Reject(ctx context.Context, tenantID, id, reason, by string) (*request.Request, error) {
	claimed, err := s.store.ClaimRequest(ctx, tenantID, id, request.RejectFrom)
	if err != nil {
		return nil, err
	}
	c := completionOf(claimed, request.StatusRejected)
	c.Reason = reason
	c.ApprovedBy = by
	done, err := s.store.CompleteRequest(context.WithoutCancel(ctx), tenantID, id, c)
	if err != nil {
		return nil, fmt.Errorf("complete rejection: %w", err)
	}
	s.metrics.Approval(ctx, string(request.StatusRejected))
	return done, nil
}

// MarkPlayed moves an approved or queued request to played.
func (s *ApprovalService) MarkPlayed(ctx context.Context, tenantID, id string) (*request.Request, error) {
	claimed, err := s.store.ClaimRequest(ctx, tenantID, id, request.PlayedFrom)
	if err != nil {
		return nil, err
	}
	done, err := s.store.CompleteRequest(context.WithoutCancel(ctx), tenantID, id, completionOf(claimed, request.StatusPlayed))
	if err != nil {
		return nil, fmt.Errorf("complete played: %w", err)
	}
	s.feed.Emit(ctx, tenantID, change.KindRequestPlayed, done)
	return done, nil
}

// apply runs the requested side effects concurrently, each with its own
// timeout. One failing never prevents the other.
func (s *ApprovalService) apply(ctx context.Context, tenantID string, r *request.Request, queue, playlist, playNext bool) request.Outcome {
	out := request.Outcome{
		Queue:    request.SideEffect{Requested: queue},
		Playlist: request.SideEffect{Requested: playlist},
	}
	if !queue && !playlist {
		return out
	}

	deviceID, playlistID, err := s.targets.Targets(ctx, tenantID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		slog.Warn("load playback targets", "tenant_id", tenantID, "error", err)
	}

	var g errgroup.Group
	if queue {
		g.Go(func() error {
			err := s.call(ctx, func(ctx context.Context) error {
				return s.provider.AddToQueue(ctx, tenantID, r.Track.URI, deviceID)
			})
			out.Queue.Succeeded, out.Queue.Error = err == nil, errText(err)
			if err == nil && playNext {
				if err := s.call(ctx, func(ctx context.Context) error {
					return s.provider.Skip(ctx, tenantID, deviceID)
				}); err != nil {
					slog.Warn("play next: skip failed", "tenant_id", tenantID, "request_id", r.ID, "error", err)
				}
			}
			return nil
		})
	}
	if playlist {
		g.Go(func() error {
			if playlistID == "" {
				out.Playlist.Error = "no playlist configured"
				return nil
			}
			err := s.call(ctx, func(ctx context.Context) error {
				return s.provider.AddToPlaylist(ctx, tenantID, playlistID, r.Track.URI)
			})
			out.Playlist.Succeeded, out.Playlist.Error = err == nil, errText(err)
			return nil
		})
	}
	_ = g.Wait()

	if out.Queue.Error != "" || out.Playlist.Error != "" {
		slog.Info("approval side effect failed",
			"tenant_id", tenantID, "request_id", r.ID, "error", out.ErrorText())
	}
	return out
}

func (s *ApprovalService) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	return err.Error()
}

// merge folds a prior successful side effect into a retry result.
func merge(requested, succeeded bool, retry request.SideEffect) request.SideEffect {
	if succeeded {
		return request.SideEffect{Requested: requested, Succeeded: true}
	}
	retry.Requested = requested
	return retry
}

// completionOf releases a claim to status without changing the recorded outcome.
func completionOf(r *request.Request, status request.Status) request.Completion {
	return request.Completion{
		Status:            status,
		AddedToQueue:      r.AddedToQueue,
		AddedToPlaylist:   r.AddedToPlaylist,
		RequestedQueue:    r.RequestedQueue,
		RequestedPlaylist: r.RequestedPlaylist,
		LastError:         r.LastError,
		Reason:            r.RejectionReason,
	}
}
