package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/skyrelay/skyrelay/internal/models"
	"github.com/skyrelay/skyrelay/pkg/config"
	"github.com/skyrelay/skyrelay/pkg/logging"
)

var (
	// ErrAccountBusy means a relay run for the account is already in flight.
	ErrAccountBusy = errors.New("relay run already in progress")

	// ErrAccountNotFound means the requested account does not exist.
	ErrAccountNotFound = errors.New("account not found")
)

// AccountLister loads the accounts the scheduler fans out over.
type AccountLister interface {
	FindLinked(ctx context.Context) ([]*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// Scheduler drives the periodic relay ticks and the maintenance sweep. Each
// tick fans out one goroutine per account; a per-account busy flag makes
// overlapping runs for the same account impossible, while different
// accounts proceed in parallel.
type Scheduler struct {
	cron     *cron.Cron
	cfg      config.RelayConfig
	accounts AccountLister
	relay    *Orchestrator
	cleanup  *Cleanup
	logger   *zap.Logger

	busy sync.Map
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. cleanup may be nil to disable the
// maintenance sweep.
func NewScheduler(cfg config.RelayConfig, accounts AccountLister, relay *Orchestrator, cleanup *Cleanup) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(),
		cfg:      cfg,
		accounts: accounts,
		relay:    relay,
		cleanup:  cleanup,
		logger:   logging.WithComponent("scheduler"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start registers the cron entries and begins ticking.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", s.cfg.PollIntervalSeconds), s.tick); err != nil {
		return fmt.Errorf("could not schedule relay tick: %w", err)
	}

	if s.cleanup != nil {
		if _, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", s.cfg.CleanupIntervalSeconds), s.sweep); err != nil {
			return fmt.Errorf("could not schedule cleanup sweep: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("Scheduler started",
		zap.Int("poll_interval_seconds", s.cfg.PollIntervalSeconds),
		zap.Int("cleanup_interval_seconds", s.cfg.CleanupIntervalSeconds))
	return nil
}

// Stop halts the cron ticker and waits for in-flight account runs to drain.
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// RunNow triggers an immediate relay run for one account, used by the admin
// API. Returns ErrAccountBusy when a scheduled run is already in flight.
func (s *Scheduler) RunNow(ctx context.Context, accountID string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}

	if _, loaded := s.busy.LoadOrStore(account.ID, true); loaded {
		return ErrAccountBusy
	}
	defer s.busy.Delete(account.ID)

	return s.relay.Run(ctx, account)
}

func (s *Scheduler) tick() {
	accounts, err := s.accounts.FindLinked(s.ctx)
	if err != nil {
		s.logger.Error("Could not load accounts", zap.Error(err))
		return
	}

	for _, account := range accounts {
		account := account
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runAccount(account)
		}()
	}
}

func (s *Scheduler) runAccount(account *models.Account) {
	if _, loaded := s.busy.LoadOrStore(account.ID, true); loaded {
		s.logger.Debug("Previous run still in progress, skipping",
			zap.String("account", account.Name))
		return
	}
	defer s.busy.Delete(account.ID)

	if err := s.relay.Run(s.ctx, account); err != nil {
		s.logger.Error("Relay run failed",
			zap.String("account", account.Name),
			zap.Error(err))
	}
}

func (s *Scheduler) sweep() {
	if err := s.cleanup.Sweep(s.ctx); err != nil {
		s.logger.Error("Cleanup sweep failed", zap.Error(err))
	}
}
