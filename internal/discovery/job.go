// Package discovery runs the scheduled discovery job: it fetches
// already-formed candidate expressions from an external source, classifies
// and gates each one through the policy engine, sizes approved candidates
// via fractional Kelly, and either executes them (full-auto) or journals
// them as observation-only. Strategy discovery itself, the scoring and
// universe selection behind the candidates, is out of scope; this job only
// gates and sizes whatever it is handed.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/perpautopilot/internal/clock"
	"github.com/aristath/perpautopilot/internal/collaborators"
	"github.com/aristath/perpautopilot/internal/domain"
	"github.com/aristath/perpautopilot/internal/policy"
	"github.com/aristath/perpautopilot/internal/store"
	"github.com/aristath/perpautopilot/pkg/formulas"
)

// Job is the scheduled discovery job, grounded on the same
// fetch-classify-gate-act loop as internal/heartbeat.Supervisor.Tick.
type Job struct {
	source   collaborators.ExpressionSource
	engine   *policy.Engine
	executor collaborators.Executor
	policy   *store.PolicyRepository
	journal  *store.JournalRepository
	clock    clock.Clock
	cfg      policy.Config
	log      zerolog.Logger
}

// New constructs a Job.
func New(source collaborators.ExpressionSource, engine *policy.Engine, executor collaborators.Executor, policyRepo *store.PolicyRepository, journalRepo *store.JournalRepository, c clock.Clock, cfg policy.Config, log zerolog.Logger) *Job {
	return &Job{
		source:   source,
		engine:   engine,
		executor: executor,
		policy:   policyRepo,
		journal:  journalRepo,
		clock:    c,
		cfg:      cfg,
		log:      log.With().Str("component", "discovery").Logger(),
	}
}

// Name satisfies scheduler.Job.
func (j *Job) Name() string { return "discovery_scan" }

// Run satisfies scheduler.Job. A fetch failure is returned so the caller's
// alerting decorator can raise it; a per-candidate failure is journaled
// and does not abort the rest of the batch.
func (j *Job) Run(ctx context.Context) error {
	candidates, err := j.source.FetchCandidates(ctx)
	if err != nil {
		return fmt.Errorf("discovery: failed to fetch candidates: %w", err)
	}

	now := j.clock.Now()
	sessionDate := policy.SessionDateFor(now)

	for _, c := range candidates {
		j.evaluate(ctx, c, sessionDate, now)
	}
	return nil
}

func (j *Job) evaluate(ctx context.Context, c collaborators.ExpressionCandidate, sessionDate string, now time.Time) {
	regime := policy.ClassifyRegime(c.Cluster)
	volatility := policy.VolatilityBucket(c.Cluster)
	liquidity := policy.LiquidityBucket(c.Cluster)
	signalClass := policy.ClassifySignal(c.Expression)

	allowed, reason := j.engine.GlobalTradeGate(policy.GlobalTradeGateInput{
		SessionDate: sessionDate,
		SignalClass: signalClass,
		Regime:      regime,
	})
	if !allowed {
		j.append(c.Expression, domain.OutcomeBlocked, signalClass, regime, volatility, liquidity, 0, reason, now)
		return
	}

	size := j.size(c.Expression, signalClass)

	if !j.engine.FullAuto() {
		j.append(c.Expression, domain.OutcomeWouldTrade, signalClass, regime, volatility, liquidity, size,
			fmt.Sprintf("full-auto disabled: would size at %.4f", size), now)
		return
	}

	leverage := c.Expression.Leverage
	decision := collaborators.Decision{
		Symbol:    c.Expression.Symbol,
		Side:      c.Expression.Side,
		Size:      size,
		OrderType: domain.OrderTypeMarket,
		Leverage:  &leverage,
		Reasoning: fmt.Sprintf("discovery: %s signal_class=%s regime=%s", c.Expression.HypothesisID, signalClass, regime),
	}

	result, err := j.executor.Execute(ctx, c.Expression.Symbol, decision)
	if err != nil || !result.Executed {
		msg := ""
		if err != nil {
			msg = err.Error()
		} else {
			msg = result.Message
		}
		j.append(c.Expression, domain.OutcomeFailed, signalClass, regime, volatility, liquidity, size, msg, now)
		return
	}

	j.append(c.Expression, domain.OutcomeExecuted, signalClass, regime, volatility, liquidity, size, result.Message, now)
}

// size resolves the candidate's fractional Kelly sizing fraction from its
// expressed edge and confidence, scaled by the signal class's resolved
// captured-R variance and sample count.
func (j *Job) size(expr domain.Expression, signalClass domain.SignalClass) float64 {
	samples, err := j.policy.ResolvedSamplesForSignalClass(string(signalClass))
	if err != nil {
		j.log.Error().Err(err).Str("signal_class", string(signalClass)).Msg("failed to read signal performance samples for sizing")
	}

	rs := make([]float64, len(samples))
	for i, s := range samples {
		rs[i] = s.CapturedR
	}

	return policy.FractionalKelly(policy.KellyInput{
		Edge:        expr.ExpectedEdge,
		Expectancy:  expr.Confidence,
		Variance:    formulas.Variance(rs),
		SampleCount: len(samples),
	}, j.cfg.MaxKellyFraction)
}

func (j *Job) append(expr domain.Expression, outcome domain.Outcome, signalClass domain.SignalClass, regime domain.MarketRegime, volatility domain.VolatilityBucket, liquidity domain.LiquidityBucket, size float64, reason string, now time.Time) {
	if _, err := j.journal.Append(store.JournalEntryInput{
		Symbol:       expr.Symbol,
		Side:         string(expr.Side),
		Size:         size,
		Leverage:     expr.Leverage,
		OrderType:    string(domain.OrderTypeMarket),
		Outcome:      string(outcome),
		SignalClass:  string(signalClass),
		MarketRegime: string(regime),
		Volatility:   string(volatility),
		Liquidity:    string(liquidity),
		Triggers:     []string{expr.HypothesisID},
		Reason:       reason,
		CreatedAt:    now,
	}); err != nil {
		j.log.Error().Err(err).Str("symbol", expr.Symbol).Msg("failed to append discovery journal entry")
	}
}
