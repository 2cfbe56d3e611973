package publish

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Service runs one cycle for every configured account. Accounts execute
// concurrently; all operations within one account stay serialized inside
// its runner. A failed account cycle is logged and never interrupts the
// other accounts or the scheduler.
type Service struct {
	runners []*Runner
	logger  *slog.Logger
}

// NewService creates a Service over the given runners.
func NewService(runners []*Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runners: runners, logger: logger}
}

// RunAll executes one cycle per account and blocks until every account
// has reached IDLE.
func (s *Service) RunAll(ctx context.Context) {
	var g errgroup.Group
	for _, runner := range s.runners {
		runner := runner
		g.Go(func() error {
			if err := runner.RunCycle(ctx); err != nil {
				s.logger.Error("account cycle failed",
					slog.String("account", runner.account.Name),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
}
