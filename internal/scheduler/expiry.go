package scheduler

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/companycontext"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	"github.com/smallbiznis/fuelledger/pkg/fsm"
	"go.uber.org/zap"
)

const expiryReason = "expired by scheduler"

var terminalSlipStatuses = []orderslipdomain.Status{
	orderslipdomain.StatusCompleted,
	orderslipdomain.StatusDisapproved,
	orderslipdomain.StatusExpired,
	orderslipdomain.StatusClosed,
}

type expiringSlip struct {
	ID        snowflake.ID
	CompanyID snowflake.ID
}

// ExpireOrderSlipsJob moves every open slip whose expiry has passed into
// Expired through the slip service, so guards and events still apply.
func (s *Scheduler) ExpireOrderSlipsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobExpireOrderSlips, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	var jobErr error

	// every slip is attempted once per run
	seen := map[snowflake.ID]struct{}{}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		slips, err := s.fetchExpiringSlips(ctx, seen, s.cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.slip.fetch.failed", 0, err)
			return errors.Join(jobErr, err)
		}
		if len(slips) == 0 {
			break
		}

		for _, slip := range slips {
			seen[slip.ID] = struct{}{}
			slipCtx := companycontext.WithCompanyID(ctx, slip.CompanyID)
			_, err := s.orderSlips.Transition(slipCtx, slip.ID, orderslipdomain.TransitionRequest{
				Target: orderslipdomain.StatusExpired,
				Reason: expiryReason,
			})
			switch {
			case err == nil:
				run.AddProcessed(1)
				s.logger(slipCtx).Info("scheduler.slip.expired", zap.Stringer("order_slip_id", slip.ID))
			case errors.Is(err, fsm.ErrInvalidTransition):
				// moved to a terminal state after the fetch
				run.Skip()
			default:
				jobErr = errors.Join(jobErr, err)
				s.logSchedulerError(ctx, run, "scheduler.slip.expire.failed", slip.CompanyID, err,
					zap.Stringer("order_slip_id", slip.ID),
				)
			}
		}
		if len(slips) < s.cfg.BatchSize {
			break
		}
	}

	return jobErr
}

func (s *Scheduler) fetchExpiringSlips(ctx context.Context, exclude map[snowflake.ID]struct{}, limit int) ([]expiringSlip, error) {
	query := s.db.WithContext(ctx).
		Model(&orderslipdomain.OrderSlip{}).
		Select("id", "company_id").
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.clock.Now()).
		Where("status NOT IN ?", terminalSlipStatuses)
	if len(exclude) > 0 {
		ids := make([]snowflake.ID, 0, len(exclude))
		for id := range exclude {
			ids = append(ids, id)
		}
		query = query.Where("id NOT IN ?", ids)
	}

	var out []expiringSlip
	err := query.Order("expires_at ASC").Order("id ASC").Limit(limit).Scan(&out).Error
	return out, err
}
