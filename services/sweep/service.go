package sweep

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	"golang.org/x/time/rate"

	"github.com/veilmail/relay/config"
	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/enum"
	relayerrors "github.com/veilmail/relay/internal/errors"
	"github.com/veilmail/relay/internal/logger"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/internal/tracing"
	"github.com/veilmail/relay/internal/utils"
	"github.com/veilmail/relay/services/leakdetect"
)

// Pacer spaces out calls to the breach database. *rate.Limiter satisfies
// it; tests inject a no-op.
type Pacer interface {
	Wait(ctx context.Context) error
}

type sweepService struct {
	aliases      interfaces.AliasRepository
	breachChecks interfaces.BreachCheckRepository
	client       interfaces.BreachLookupClient
	leakDetector interfaces.LeakDetectorService
	lifecycle    interfaces.LifecycleService
	pacer        Pacer
	sleep        func(time.Duration)

	recheckInterval time.Duration
	batchSize       int

	running int32
	log     logger.Logger
}

func NewBreachSweepService(
	cfg *config.BreachWatchConfig,
	aliases interfaces.AliasRepository,
	breachChecks interfaces.BreachCheckRepository,
	client interfaces.BreachLookupClient,
	leakDetector interfaces.LeakDetectorService,
	lifecycle interfaces.LifecycleService,
	log logger.Logger,
) interfaces.BreachSweepService {
	interval := time.Duration(cfg.MinIntervalMs) * time.Millisecond
	return &sweepService{
		aliases:         aliases,
		breachChecks:    breachChecks,
		client:          client,
		leakDetector:    leakDetector,
		lifecycle:       lifecycle,
		pacer:           rate.NewLimiter(rate.Every(interval), 1),
		sleep:           time.Sleep,
		recheckInterval: time.Duration(cfg.RecheckIntervalHours) * time.Hour,
		batchSize:       cfg.SweepBatchSize,
		log:             log,
	}
}

// Run executes one sweep over aliases due for a breach check. Only one
// run may be active at a time.
func (s *sweepService) Run(ctx context.Context) (*interfaces.SweepStats, error) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return nil, relayerrors.ErrSweepInProgress
	}
	defer atomic.StoreInt32(&s.running, 0)

	span, ctx := opentracing.StartSpanFromContext(ctx, "sweepService.Run")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	cutoff := utils.Now().Add(-s.recheckInterval)
	due, err := s.aliases.ListDueForBreachCheck(ctx, cutoff, s.batchSize)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	stats := &interfaces.SweepStats{Selected: len(due)}
	span.LogKV("selected", stats.Selected)

	for _, alias := range due {
		if err := s.pacer.Wait(ctx); err != nil {
			tracing.TraceErr(span, err)
			return stats, err
		}
		s.checkAlias(ctx, alias, stats)
	}

	s.log.Infof("breach sweep done: selected=%d checked=%d breached=%d killed=%d leaked=%d rate_limited=%d errors=%d",
		stats.Selected, stats.Checked, stats.Breached, stats.Killed, stats.Leaked, stats.RateLimited, stats.Errors)
	return stats, nil
}

// checkAlias looks up one alias address. Rate limiting pauses the sweep
// and leaves the alias unmarked so the next run picks it up again; other
// failures skip it the same way.
func (s *sweepService) checkAlias(ctx context.Context, alias *models.Alias, stats *interfaces.SweepStats) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sweepService.checkAlias")
	defer span.Finish()
	tracing.TagAlias(span, alias.ID)

	result, err := s.client.LookupBreaches(ctx, alias.Address())
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("breach lookup failed for alias %s: %v", alias.ID, err)
		stats.Errors++
		return
	}

	switch result.Kind {
	case interfaces.BreachLookupRateLimited:
		stats.RateLimited++
		s.log.Warnf("breach database rate limited, pausing sweep for %s", result.RetryAfter)
		s.sleep(result.RetryAfter)
		return

	case interfaces.BreachLookupNotFound:
		stats.Checked++
		if err := s.aliases.MarkBreachChecked(ctx, alias.ID, utils.Now(), false); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("failed to mark alias %s checked: %v", alias.ID, err)
		}

	case interfaces.BreachLookupFound:
		stats.Checked++
		stats.Breached++
		s.recordBreaches(ctx, alias, result.Breaches)

		severity := s.leakDetector.Severity(result.Breaches)
		killEligible := s.leakDetector.KillEligible(result.Breaches)
		span.LogKV("severity", severity, "kill-eligible", killEligible)

		if err := s.lifecycle.ApplyBreachResult(ctx, alias, severity, killEligible); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("failed to apply breach result for alias %s: %v", alias.ID, err)
			stats.Errors++
		} else if killEligible && severity >= leakdetect.KillSeverityThreshold {
			stats.Killed++
		}

		if err := s.aliases.MarkBreachChecked(ctx, alias.ID, utils.Now(), true); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("failed to mark alias %s checked: %v", alias.ID, err)
		}
	}

	s.probeDecoy(ctx, alias, stats)
}

func (s *sweepService) recordBreaches(ctx context.Context, alias *models.Alias, breaches []interfaces.BreachRecord) {
	for _, breach := range breaches {
		check := &models.BreachCheck{
			AliasID:      alias.ID,
			Email:        alias.Address(),
			BreachName:   breach.Name,
			BreachDate:   breach.BreachDate,
			DataClasses:  pq.StringArray(breach.DataClasses),
			IsVerified:   breach.IsVerified,
			IsFabricated: breach.IsFabricated,
			IsRetired:    breach.IsRetired,
			IsSpamList:   breach.IsSpamList,
			IsSensitive:  breach.IsSensitive,
		}
		if _, err := s.breachChecks.Create(ctx, check); err != nil {
			s.log.Errorf("failed to persist breach check for alias %s: %v", alias.ID, err)
		}
	}
}

// probeDecoy checks the paste surface for the alias decoy token. A hit is
// the same signal as an inbound decoy match: the address circulated where
// it should not have.
func (s *sweepService) probeDecoy(ctx context.Context, alias *models.Alias, stats *interfaces.SweepStats) {
	if !alias.DecoyEnabled() || alias.Status != enum.AliasActive {
		return
	}

	// the paste lookup is a second call to the breach database and has
	// to respect the same spacing as the breach lookup
	if err := s.pacer.Wait(ctx); err != nil {
		return
	}

	found, err := s.client.LookupPastes(ctx, *alias.DecoyToken)
	if err != nil {
		if rateLimited, ok := relayerrors.IsRateLimited(err); ok {
			stats.RateLimited++
			s.log.Warnf("breach database rate limited, pausing sweep for %s", rateLimited.RetryAfter)
			s.sleep(rateLimited.RetryAfter)
			return
		}
		s.log.Errorf("paste lookup failed for alias %s: %v", alias.ID, err)
		stats.Errors++
		return
	}
	if !found {
		return
	}

	if err := s.lifecycle.MarkLeaked(ctx, alias, "paste_probe", models.JSONMap{
		"surface": "paste",
	}); err != nil {
		s.log.Errorf("failed to mark alias %s leaked: %v", alias.ID, err)
		stats.Errors++
		return
	}
	stats.Leaked++
}
