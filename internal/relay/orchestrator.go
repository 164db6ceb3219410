package relay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skyrelay/skyrelay/internal/bluesky"
	"github.com/skyrelay/skyrelay/internal/mastodon"
	"github.com/skyrelay/skyrelay/internal/models"
	"github.com/skyrelay/skyrelay/pkg/config"
	"github.com/skyrelay/skyrelay/pkg/logging"
	"github.com/skyrelay/skyrelay/pkg/telemetry"
)

// SourceFactory builds a source client for an instance URL and token.
// Swapped out in tests.
type SourceFactory func(baseURL, token string) Source

// Orchestrator relays the pending statuses of one account per run: resolve
// the in-scope statuses, acquire a destination session, then post them
// oldest first with thread links, rate-limit spacing and watermark
// advancement. Accounts share nothing, so runs for different accounts may
// overlap freely.
type Orchestrator struct {
	cfg       config.RelayConfig
	store     Store
	sessions  *SessionManager
	newSource SourceFactory
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg config.RelayConfig, store Store, sessions *SessionManager) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		newSource: func(baseURL, token string) Source {
			return mastodon.New(baseURL, token)
		},
		logger: logging.WithComponent("orchestrator"),
	}
}

// Run performs one relay pass for the account. All per-post errors are
// handled inside; a returned error means the whole run could not proceed
// (fetch or session failure) and will be retried on the next tick.
func (o *Orchestrator) Run(ctx context.Context, account *models.Account) error {
	ctx, span := telemetry.StartSpan(ctx, "relay.run")
	defer span.End()

	logger := o.logger.With(
		zap.String("account", account.Name),
		zap.String("instance", account.InstanceURL()),
	)

	if !account.HasDestination() {
		logger.Debug("No destination credentials configured")
		return nil
	}

	source := o.newSource(instanceBaseURL(account), account.SourceToken)

	statuses, err := source.RecentStatuses(ctx, account.SourceUID, o.cfg.MaxFetch)
	if err != nil {
		return fmt.Errorf("could not fetch new statuses: %w", err)
	}

	policy := PolicyFromAccount(account)
	queue := ResolveStatuses(statuses, account.SourceUID, policy, account.LastPostTime)
	if len(queue) == 0 {
		logger.Debug("No new posts")
		return nil
	}

	agent, err := o.sessions.Acquire(ctx, account)
	if err != nil {
		return err
	}

	// Statuses relayed earlier in this run, keyed by source id. Fresher
	// than the persisted records for same-run thread chains.
	runCache := make(map[string]bluesky.ReplyRef)

	for i := range queue {
		status := &queue[i]
		slog := logger.With(zap.String("status", status.ID))

		if reason := skipReason(policy, account.SourceUID, status); reason != "" {
			slog.Info("Skipping status", zap.String("reason", reason))
			o.advanceWatermark(ctx, account, status, slog)
			continue
		}

		outcome := o.relayStatus(ctx, agent, source, account, policy, status, runCache, slog)
		switch outcome {
		case outcomeDeactivated:
			logger.Warn("Destination account deactivated, aborting run")
			if err := o.store.ClearDestination(ctx, account.ID); err != nil {
				logger.Error("Could not clear destination credentials", zap.Error(err))
			}
			return nil
		case outcomeUnpostable:
			// can never become postable; treat as processed
			o.advanceWatermark(ctx, account, status, slog)
		case outcomeFailed:
			// watermark untouched so the status is retried next tick
		case outcomePosted:
			o.advanceWatermark(ctx, account, status, slog)
		}

		if i < len(queue)-1 {
			o.wait(ctx)
		}
	}

	return nil
}

type outcome int

const (
	outcomePosted outcome = iota
	outcomeFailed
	outcomeUnpostable
	outcomeDeactivated
)

// relayStatus posts one status as one or more chunks and records the
// resulting thread pointers.
func (o *Orchestrator) relayStatus(ctx context.Context, agent Agent, source Source, account *models.Account, policy Policy, status *mastodon.Status, runCache map[string]bluesky.ReplyRef, logger *zap.Logger) outcome {
	ctx, span := telemetry.StartSpan(ctx, "relay.post_status")
	defer span.End()

	logger.Info("Posting status")

	chunks := SplitTextLimit(
		HTMLToText(status.Content),
		spoilerPrefix(status),
		postLink(status),
		policy.Numbering,
		1,
		o.cfg.ChunkLimit,
	)

	records := buildRecords(ctx, agent, source, status, chunks, logger)

	chain := o.resolveParent(ctx, agent, account, status, runCache, logger)

	posted := false
	for i, record := range records {
		if len(records) > 1 {
			logger.Info("Posting chunk",
				zap.Int("part", i+1),
				zap.Int("total", len(records)))
		}

		if !chain.Parent.IsZero() {
			reply := chain
			record.Reply = &reply
		}

		ref, err := agent.Post(ctx, record)
		if err != nil {
			switch {
			case bluesky.IsAccountDeactivated(err):
				return outcomeDeactivated
			case bluesky.IsRecordInvalid(err) && !posted:
				logger.Warn("Destination rejected record as invalid, dropping status", zap.Error(err))
				return outcomeUnpostable
			default:
				logger.Error("Could not post chunk", zap.Error(err))
				if !posted {
					return outcomeFailed
				}
				// part of the thread is out; record what exists
			}
			break
		}

		if chain.Root.IsZero() {
			chain.Root = ref
		}
		chain.Parent = ref
		posted = true

		if i < len(records)-1 {
			o.wait(ctx)
		}
	}

	if !posted {
		return outcomeFailed
	}

	runCache[status.ID] = chain
	if err := o.store.PutRepost(ctx, account.ID, status.ID, chain); err != nil {
		// Without the record the status is retried next tick, which can
		// duplicate the post. That matches the at-least-once contract.
		logger.Error("Could not store repost record", zap.Error(err))
		return outcomeFailed
	}

	return outcomePosted
}

// resolveParent finds the destination thread pointers for the status'
// source parent: run cache first, then the persisted store. A stored
// parent is only trusted after it still resolves on the destination;
// otherwise the status is posted as a new root instead of a broken reply.
func (o *Orchestrator) resolveParent(ctx context.Context, agent Agent, account *models.Account, status *mastodon.Status, runCache map[string]bluesky.ReplyRef, logger *zap.Logger) bluesky.ReplyRef {
	var chain bluesky.ReplyRef

	if !status.IsReply() {
		return chain
	}
	parentID := *status.InReplyToID

	if cached, ok := runCache[parentID]; ok {
		logger.Debug("Found parent in run cache", zap.String("parent_uri", cached.Parent.URI))
		chain = cached
	} else if stored, err := o.store.GetRepost(ctx, account.ID, parentID); err != nil {
		logger.Error("Could not look up parent record", zap.Error(err))
	} else if stored != nil {
		logger.Debug("Found parent in store", zap.String("parent_uri", stored.Parent.URI))
		chain = *stored
	} else {
		logger.Debug("No parent record, posting as root", zap.String("parent_id", parentID))
	}

	if chain.Parent.IsZero() {
		return chain
	}

	existing, err := agent.GetPosts(ctx, []string{chain.Parent.URI})
	if err != nil || len(existing) == 0 {
		logger.Info("Parent no longer resolves on destination, posting as root",
			zap.String("parent_uri", chain.Parent.URI))
		return bluesky.ReplyRef{}
	}

	return chain
}

// skipReason classifies statuses that are in the queue only so the
// watermark can move past them. Evaluated before any thread resolution,
// preserving the rule order of the filtering pipeline.
func skipReason(policy Policy, accountUID string, status *mastodon.Status) string {
	if (status.Sensitive || status.SpoilerText != "") && !policy.RelayCW {
		return "content warning not relayed"
	}
	if status.RepliesToOther(accountUID) {
		return "reply to another account"
	}
	return ""
}

func (o *Orchestrator) advanceWatermark(ctx context.Context, account *models.Account, status *mastodon.Status, logger *zap.Logger) {
	if err := o.store.SetWatermark(ctx, account.ID, status.CreatedAt); err != nil {
		logger.Error("Could not advance watermark", zap.Error(err))
		return
	}
	if status.CreatedAt.After(account.LastPostTime) {
		account.LastPostTime = status.CreatedAt
	}
}

// wait sleeps the configured inter-post delay, bailing out early when the
// context is cancelled. The destination needs the gap for its
// read-after-write window, and it keeps bursts below rate limits.
func (o *Orchestrator) wait(ctx context.Context) {
	if o.cfg.PostWaitMs <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(o.cfg.PostWaitMs) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func instanceBaseURL(account *models.Account) string {
	if account.Instance == nil {
		return ""
	}
	return account.Instance.BaseURL()
}
