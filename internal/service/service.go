package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tributary/internal/scheduler"
)

// AdvisoryLocker guards rounds against concurrent daemons sharing one ledger.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error)
}

// RoundRunner executes one distribution round.
type RoundRunner func(ctx context.Context, round time.Time) error

// Service drives recurring distribution rounds, serialised through an
// advisory lock when one is configured.
type Service struct {
	scheduler *scheduler.Scheduler
	runner    RoundRunner
	locker    AdvisoryLocker
	lockKey   int64
	logger    zerolog.Logger
}

// New constructs the distribution daemon.
func New(sched *scheduler.Scheduler, runner RoundRunner, locker AdvisoryLocker, lockKey int64, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: sched,
		runner:    runner,
		locker:    locker,
		lockKey:   lockKey,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the recurring distribution loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessRound)
}

// ProcessRound runs a single distribution round under the advisory lock.
func (s *Service) ProcessRound(ctx context.Context, round time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("round", round).Msg("skip round because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.runner(ctx, round)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
