package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// step is one unit of a saga. action may be nil for steps whose effect
// already happened before the saga started (the provider-side subject).
type step struct {
	name       string
	action     func(ctx context.Context) error
	compensate func(ctx context.Context, cause error) error
}

// saga runs steps in order. When a step fails, the compensations of all
// completed steps run in reverse order and the failure is returned.
// Compensation failures are logged and never replace the original error.
type saga struct {
	steps  []step
	logger *zap.SugaredLogger
}

func newSaga(logger *zap.SugaredLogger) *saga {
	return &saga{logger: logger}
}

func (s *saga) add(name string, action func(context.Context) error, compensate func(context.Context, error) error) {
	s.steps = append(s.steps, step{name: name, action: action, compensate: compensate})
}

func (s *saga) run(ctx context.Context) error {
	for i, st := range s.steps {
		if st.action == nil {
			continue
		}
		if err := st.action(ctx); err != nil {
			err = fmt.Errorf("%s: %w", st.name, err)
			s.unwind(ctx, i, err)
			return err
		}
	}
	return nil
}

// unwind compensates steps[0:failed] in reverse.
func (s *saga) unwind(ctx context.Context, failed int, cause error) {
	for i := failed - 1; i >= 0; i-- {
		st := s.steps[i]
		if st.compensate == nil {
			continue
		}
		if err := st.compensate(ctx, cause); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Errorw("compensation failed", "step", st.name, "cause", cause, "err", err)
		}
	}
}
