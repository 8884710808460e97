package analytics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obakengshepherd/RiskSentinel/internal/cache"
	"github.com/obakengshepherd/RiskSentinel/internal/httpapi"
	"github.com/obakengshepherd/RiskSentinel/internal/models"
	"github.com/obakengshepherd/RiskSentinel/internal/repositories"
)

const (
	topRiskLimit     = 5
	trendWindowHours = 24
)

// Service aggregates the dashboard KPIs and the hourly risk trend.
type Service struct {
	transactions *repositories.TransactionRepository
	riskScores   *repositories.RiskScoreRepository
	alerts       *repositories.AlertRepository
	cache        *cache.Client
}

// NewService wires the analytics service. cache may be nil when Redis is
// not deployed.
func NewService(
	transactions *repositories.TransactionRepository,
	riskScores *repositories.RiskScoreRepository,
	alerts *repositories.AlertRepository,
	cacheClient *cache.Client,
) *Service {
	return &Service{
		transactions: transactions,
		riskScores:   riskScores,
		alerts:       alerts,
		cache:        cacheClient,
	}
}

// DashboardSummary assembles the analyst-panel snapshot. The snapshot is
// served from Redis when fresh; cache errors degrade to a database read.
func (s *Service) DashboardSummary(ctx context.Context) (*models.DashboardSummary, error) {
	if s.cache != nil {
		cached := &models.DashboardSummary{}
		if err := s.cache.Get(ctx, cache.DashboardSummaryKey, cached); err == nil {
			return cached, nil
		}
	}

	summary := &models.DashboardSummary{
		TopRiskTransactions: []*models.TransactionSummary{},
		AlertDistribution:   map[string]int{},
	}

	totalTxns, err := s.transactions.CountAll(ctx)
	if err != nil {
		return nil, httpapi.Database("failed to count transactions", err)
	}
	summary.TotalTransactions = totalTxns

	openAlerts, err := s.alerts.CountByStatus(ctx, models.AlertStatusOpen, "")
	if err != nil {
		return nil, httpapi.Database("failed to count open alerts", err)
	}
	summary.TotalAlertsOpen = openAlerts

	criticalAlerts, err := s.alerts.CountByStatus(ctx, models.AlertStatusOpen, models.RiskLevelCritical)
	if err != nil {
		return nil, httpapi.Database("failed to count critical alerts", err)
	}
	summary.TotalAlertsCritical = criticalAlerts

	avgScore, err := s.riskScores.AvgComposite(ctx)
	if err != nil {
		return nil, httpapi.Database("failed to compute average risk score", err)
	}
	summary.AvgRiskScore = avgScore

	topRisk, err := s.riskScores.TopRisk(ctx, topRiskLimit)
	if err != nil {
		return nil, httpapi.Database("failed to load top risk transactions", err)
	}
	if topRisk != nil {
		summary.TopRiskTransactions = topRisk
	}

	distribution, err := s.alerts.OpenSeverityDistribution(ctx)
	if err != nil {
		return nil, httpapi.Database("failed to load alert distribution", err)
	}
	if distribution != nil {
		summary.AlertDistribution = distribution
	}

	breaches, err := s.alerts.CountVelocityBreaches(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		return nil, httpapi.Database("failed to count velocity breaches", err)
	}
	summary.VelocityBreachesLastHour = breaches

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.DashboardSummaryKey, summary); err != nil {
			log.Warn().Err(err).Msg("Dashboard summary cache write failed")
		}
	}

	return summary, nil
}

// RiskTrend returns hourly composite-score buckets over the trailing 24 hours.
func (s *Service) RiskTrend(ctx context.Context) ([]*models.RiskTrendBucket, error) {
	since := time.Now().UTC().Add(-trendWindowHours * time.Hour)

	buckets, err := s.riskScores.HourlyTrend(ctx, since)
	if err != nil {
		return nil, httpapi.Database("failed to load risk trend", err)
	}
	if buckets == nil {
		buckets = []*models.RiskTrendBucket{}
	}

	return buckets, nil
}
