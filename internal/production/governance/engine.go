package governance

import (
	"fmt"
	"time"

	"github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/platform/logger"
)

// WarnRatio is the share of a cap above which a check warns.
const WarnRatio = 0.8

const (
	CheckCost    = "cost_cap"
	CheckTimeout = "timeout_cap"
	CheckQuality = "quality_gate"
)

// Decision is the outcome of one check. A warning never blocks.
type Decision struct {
	Check   string `json:"check"`
	Allowed bool   `json:"allowed"`
	Warning string `json:"warning,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Err returns a *production.GovernanceRejection for a refused decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &production.GovernanceRejection{Check: d.Check, Reason: d.Reason}
}

type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

type Engine struct {
	cfg *Config
	log *logger.Logger
}

func NewEngine(cfg *Config, log *logger.Logger) *Engine {
	if cfg == nil {
		cfg = NewConfig(Defaults(), nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{cfg: cfg, log: log.With("component", "Governance")}
}

func (e *Engine) Settings(profile string) Settings { return e.cfg.Resolve(profile) }

func (e *Engine) MaxConcurrentJobs() int {
	if n := e.cfg.Global().MaxConcurrentJobs; n > 0 {
		return n
	}
	return 1
}

// CheckCostCap refuses when the job alone exceeds max_cost_per_job or the
// running total would exceed max_total_cost. A non-positive cap is unlimited.
func (e *Engine) CheckCostCap(current, additional float64, profile string) Decision {
	s := e.cfg.Resolve(profile)
	d := Decision{Check: CheckCost, Allowed: true}
	if !s.EnableCostCaps {
		return d
	}
	total := current + additional
	switch {
	case s.MaxCostPerJob > 0 && additional > s.MaxCostPerJob:
		d.Allowed = false
		d.Reason = fmt.Sprintf("job cost %.2f exceeds max_cost_per_job %.2f", additional, s.MaxCostPerJob)
	case s.MaxTotalCost > 0 && total > s.MaxTotalCost:
		d.Allowed = false
		d.Reason = fmt.Sprintf("total cost %.2f exceeds max_total_cost %.2f", total, s.MaxTotalCost)
	case s.MaxCostPerJob > 0 && additional > WarnRatio*s.MaxCostPerJob:
		d.Warning = fmt.Sprintf("job cost %.2f above %.0f%% of max_cost_per_job %.2f", additional, WarnRatio*100, s.MaxCostPerJob)
	case s.MaxTotalCost > 0 && total > WarnRatio*s.MaxTotalCost:
		d.Warning = fmt.Sprintf("total cost %.2f above %.0f%% of max_total_cost %.2f", total, WarnRatio*100, s.MaxTotalCost)
	}
	e.report(profile, d)
	return d
}

// CheckTimeoutCap mirrors CheckCostCap against max_job_timeout and
// max_total_timeout.
func (e *Engine) CheckTimeoutCap(elapsed, planned time.Duration, profile string) Decision {
	s := e.cfg.Resolve(profile)
	d := Decision{Check: CheckTimeout, Allowed: true}
	if !s.EnableTimeoutCaps {
		return d
	}
	total := elapsed + planned
	switch {
	case s.MaxJobTimeout > 0 && planned > s.MaxJobTimeout:
		d.Allowed = false
		d.Reason = fmt.Sprintf("planned %s exceeds max_job_timeout %s", planned, s.MaxJobTimeout)
	case s.MaxTotalTimeout > 0 && total > s.MaxTotalTimeout:
		d.Allowed = false
		d.Reason = fmt.Sprintf("total %s exceeds max_total_timeout %s", total, s.MaxTotalTimeout)
	case s.MaxJobTimeout > 0 && float64(planned) > WarnRatio*float64(s.MaxJobTimeout):
		d.Warning = fmt.Sprintf("planned %s above %.0f%% of max_job_timeout %s", planned, WarnRatio*100, s.MaxJobTimeout)
	case s.MaxTotalTimeout > 0 && float64(total) > WarnRatio*float64(s.MaxTotalTimeout):
		d.Warning = fmt.Sprintf("total %s above %.0f%% of max_total_timeout %s", total, WarnRatio*100, s.MaxTotalTimeout)
	}
	e.report(profile, d)
	return d
}

// CheckQualityGate runs after a job produced output.
func (e *Engine) CheckQualityGate(score float64, profile string) Decision {
	s := e.cfg.Resolve(profile)
	d := Decision{Check: CheckQuality, Allowed: true}
	if !s.EnableQualityGates {
		return d
	}
	if score < s.MinQualityScore {
		d.Allowed = false
		d.Reason = fmt.Sprintf("quality score %.2f below min_quality_score %.2f", score, s.MinQualityScore)
	}
	e.report(profile, d)
	return d
}

func (e *Engine) RetryPolicy(profile string) RetryPolicy {
	s := e.cfg.Resolve(profile)
	return RetryPolicy{MaxRetries: s.MaxRetries, Backoff: s.Backoff}
}

// JobTimeout bounds a single dispatch, or 0 when timeout caps are off.
func (e *Engine) JobTimeout(profile string) time.Duration {
	s := e.cfg.Resolve(profile)
	if !s.EnableTimeoutCaps {
		return 0
	}
	return s.MaxJobTimeout
}

// WorkerOptions are merged into every job config sent to a worker.
func (e *Engine) WorkerOptions(profile string) map[string]any {
	s := e.cfg.Resolve(profile)
	return map[string]any{
		"prompt_enhancement_mode": string(s.PromptEnhancementMode),
		"worker_enhancements":     s.EnableWorkerEnhancements,
	}
}

func (e *Engine) report(profile string, d Decision) {
	switch {
	case !d.Allowed:
		e.log.Info("Governance rejected", "check", d.Check, "profile", profile, "reason", d.Reason)
	case d.Warning != "":
		e.log.Debug("Governance warning", "check", d.Check, "profile", profile, "warning", d.Warning)
	}
}
