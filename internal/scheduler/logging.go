package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/companycontext"
	obslogger "github.com/smallbiznis/fuelledger/internal/observability/logger"
	"go.uber.org/zap"
)

// jobRun tallies one execution of a job. It travels on the context so nested
// calls (RunOnce then the job itself) share a single run id.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time

	processed int
	skipped   int
	failed    int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r != nil && count > 0 {
		r.processed += count
	}
}

// Skip counts a row another writer already moved out of reach.
func (r *jobRun) Skip() {
	if r != nil {
		r.skipped++
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.failed++
	}
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing, ok := ctx.Value(jobRunKey{}).(*jobRun); ok && existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	return context.WithValue(ctx, jobRunKey{}, run), run, true
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	log := obslogger.WithContext(ctx, s.log)
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok && run != nil {
		log = log.With(zap.String("job", run.job), zap.String("run_id", run.runID))
	}
	return log
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("scheduler.job.start", zap.Int("batch_size", run.batchSize))
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processed),
		zap.Int("skipped_count", run.skipped),
		zap.Int("error_count", run.failed),
	}
	if run.failed > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}

// logSchedulerError records a per row failure; the job keeps going.
func (s *Scheduler) logSchedulerError(ctx context.Context, run *jobRun, msg string, companyID snowflake.ID, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run.IncError()
	if companyID != 0 {
		ctx = companycontext.WithCompanyID(ctx, companyID)
	}
	s.logger(ctx).Error(msg, append([]zap.Field{zap.Error(err)}, fields...)...)
}
