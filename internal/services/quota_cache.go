package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/repos"
	"github.com/yungbote/mindpath-backend/internal/types"
)

// PlanQuota is the resolved per-plan ceiling set. The cache supplies limits
// only; usage is always re-read from authoritative per-room counters.
type PlanQuota struct {
	InterventionQuota int
	TipQuota          int
	TrialMoveLimit    int
}

type QuotaCache interface {
	Get(ctx context.Context, planType types.PlanType) (PlanQuota, error)
}

type quotaCacheEntry struct {
	quota     PlanQuota
	expiresAt time.Time
}

type quotaCache struct {
	log            *logger.Logger
	planLimitsRepo repos.PlanLimitsRepo
	ttl            time.Duration
	defaults       PlanQuota
	trialDefaults  PlanQuota

	mu      sync.RWMutex
	entries map[types.PlanType]quotaCacheEntry
	group   singleflight.Group
	nowFn   func() time.Time
}

func NewQuotaCache(log *logger.Logger, planLimitsRepo repos.PlanLimitsRepo, ttl time.Duration, defaults, trialDefaults PlanQuota) QuotaCache {
	return &quotaCache{
		log:            log.With("service", "QuotaCache"),
		planLimitsRepo: planLimitsRepo,
		ttl:            ttl,
		defaults:       defaults,
		trialDefaults:  trialDefaults,
		entries:        make(map[types.PlanType]quotaCacheEntry),
		nowFn:          time.Now,
	}
}

func (qc *quotaCache) Get(ctx context.Context, planType types.PlanType) (PlanQuota, error) {
	qc.mu.RLock()
	entry, ok := qc.entries[planType]
	qc.mu.RUnlock()
	if ok && qc.nowFn().Before(entry.expiresAt) {
		return entry.quota, nil
	}

	v, err, _ := qc.group.Do(string(planType), func() (interface{}, error) {
		limits, lErr := qc.planLimitsRepo.GetByPlanType(ctx, nil, planType)
		if lErr != nil {
			return PlanQuota{}, lErr
		}
		quota := qc.fallbackFor(planType)
		if limits != nil {
			quota = PlanQuota{
				InterventionQuota: limits.InterventionQuota,
				TipQuota:          limits.TipQuota,
				TrialMoveLimit:    limits.TrialMoveLimit,
			}
		}
		qc.mu.Lock()
		qc.entries[planType] = quotaCacheEntry{quota: quota, expiresAt: qc.nowFn().Add(qc.ttl)}
		qc.mu.Unlock()
		return quota, nil
	})
	if err != nil {
		// Serve the stale entry rather than failing the hot path.
		if ok {
			qc.log.Warn("Plan limits refresh failed, serving stale entry", "plan_type", planType, "error", err)
			return entry.quota, nil
		}
		return PlanQuota{}, err
	}
	return v.(PlanQuota), nil
}

func (qc *quotaCache) fallbackFor(planType types.PlanType) PlanQuota {
	if planType == types.PlanTypeTrial {
		return qc.trialDefaults
	}
	return qc.defaults
}
