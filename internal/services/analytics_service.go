package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"supportdesk/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NamedCount 分组计数
type NamedCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// KPIReport 当日看板指标
type KPIReport struct {
	Date                   string           `json:"date"`
	TotalIncidences        int64            `json:"total_incidences_today"`
	OpenIncidences         int64            `json:"open_incidences"`
	ByOutcome              map[string]int64 `json:"by_outcome"`
	AvgResolutionSeconds   int64            `json:"avg_resolution_time_seconds"`
	AssistedConversionRate float64          `json:"assisted_conversion_rate"`
	TopFrictionScreens     []NamedCount     `json:"top_friction_screens"`
	TopIssueCategories     []NamedCount     `json:"top_issue_categories"`
	AvgFrictionScore       float64          `json:"avg_friction_score"`
	CallRequests           int64            `json:"call_requests"`
}

// ReasonShare 周报中的问题分类占比
type ReasonShare struct {
	Category   string  `json:"category"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// WeeklyReport 最近 7 天汇总
type WeeklyReport struct {
	PeriodStart            string        `json:"period_start"`
	PeriodEnd              string        `json:"period_end"`
	TotalIncidences        int64         `json:"total_incidences"`
	ConvertedIncidences    int64         `json:"converted_incidences"`
	AvgResolutionMinutes   float64       `json:"avg_resolution_time_minutes"`
	TopFrictionReasons     []ReasonShare `json:"top_friction_reasons"`
	ProductRecommendations []string      `json:"product_recommendations"`
}

// AnalyticsService 基于 Incidence 表的统计
type AnalyticsService struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

// NewAnalyticsService 创建服务
func NewAnalyticsService(db *gorm.DB, logger *logrus.Logger) *AnalyticsService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AnalyticsService{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock 替换时钟（测试用）
func (s *AnalyticsService) SetClock(now func() time.Time) {
	s.now = now
}

// KPIs 当日（UTC）指标
func (s *AnalyticsService) KPIs(ctx context.Context) (*KPIReport, error) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	scope := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Incidence{}).Where("created_at >= ?", start)
	}

	byOutcome, total, err := s.outcomeCounts(scope())
	if err != nil {
		return nil, err
	}

	var agg struct {
		AvgTTR      *float64
		AvgFriction *float64
	}
	if err := scope().
		Select("AVG(time_to_resolve_seconds) AS avg_ttr, AVG(friction_score) AS avg_friction").
		Scan(&agg).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate incidences: %w", err)
	}

	screens, err := s.topValues(scope(), "app_screen", 5)
	if err != nil {
		return nil, err
	}
	categories, err := s.topValues(scope(), "issue_category", 5)
	if err != nil {
		return nil, err
	}

	var calls int64
	if err := scope().Where("channel = ?", models.ChannelCall).Count(&calls).Error; err != nil {
		return nil, fmt.Errorf("failed to count call requests: %w", err)
	}

	report := &KPIReport{
		Date:               start.Format("2006-01-02"),
		TotalIncidences:    total,
		OpenIncidences:     byOutcome[string(models.OutcomeInProgress)],
		ByOutcome:          byOutcome,
		TopFrictionScreens: screens,
		TopIssueCategories: categories,
		CallRequests:       calls,
	}
	if agg.AvgTTR != nil {
		report.AvgResolutionSeconds = int64(*agg.AvgTTR)
	}
	if agg.AvgFriction != nil {
		report.AvgFrictionScore = round1(*agg.AvgFriction)
	}
	if total > 0 {
		report.AssistedConversionRate = round1(float64(byOutcome[string(models.OutcomeConverted)]) / float64(total) * 100)
	}
	return report, nil
}

// WeeklyReport 最近 7 天（含今天之前的 7 个自然日）
func (s *AnalyticsService) WeeklyReport(ctx context.Context) (*WeeklyReport, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -7)
	scope := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Incidence{}).Where("created_at >= ?", start)
	}

	byOutcome, total, err := s.outcomeCounts(scope())
	if err != nil {
		return nil, err
	}

	var agg struct{ AvgTTR *float64 }
	if err := scope().Select("AVG(time_to_resolve_seconds) AS avg_ttr").Scan(&agg).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate incidences: %w", err)
	}
	avgMinutes := 0.0
	if agg.AvgTTR != nil {
		avgMinutes = *agg.AvgTTR / 60
	}

	top, err := s.topValues(scope(), "issue_category", 10)
	if err != nil {
		return nil, err
	}
	reasons := make([]ReasonShare, 0, len(top))
	for _, t := range top {
		reasons = append(reasons, ReasonShare{
			Category:   t.Name,
			Count:      t.Count,
			Percentage: round1(float64(t.Count) / float64(total) * 100),
		})
	}

	return &WeeklyReport{
		PeriodStart:            start.Format("2006-01-02"),
		PeriodEnd:              today.Format("2006-01-02"),
		TotalIncidences:        total,
		ConvertedIncidences:    byOutcome[string(models.OutcomeConverted)],
		AvgResolutionMinutes:   round1(avgMinutes),
		TopFrictionReasons:     reasons,
		ProductRecommendations: Recommendations(reasons, avgMinutes),
	}, nil
}

// Recommendations 根据前三个问题分类与平均处理时长给出产品建议，最多 5 条
func Recommendations(reasons []ReasonShare, avgResolutionMinutes float64) []string {
	var out []string
	if avgResolutionMinutes > 10 {
		out = append(out, "Average resolution time >10 min. Consider adding FAQs for common issues.")
	}
	for i, r := range reasons {
		if i == 3 {
			break
		}
		cat := strings.ToLower(r.Category)
		switch {
		case strings.Contains(cat, "price") || strings.Contains(cat, "cost"):
			out = append(out, "Pricing-related friction detected. Consider clearer price breakdown in UI.")
		case strings.Contains(cat, "menu") || strings.Contains(cat, "item"):
			out = append(out, "Menu confusion detected. Consider improving item descriptions.")
		case strings.Contains(cat, "delivery"):
			out = append(out, "Delivery questions common. Add delivery info to checkout page.")
		case strings.Contains(cat, "payment"):
			out = append(out, "Payment issues detected. Review payment flow UX.")
		}
	}
	if len(out) == 0 {
		out = append(out, "No critical friction patterns detected this week.")
	}
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

func (s *AnalyticsService) outcomeCounts(q *gorm.DB) (map[string]int64, int64, error) {
	var rows []struct {
		Outcome string
		Total   int64
	}
	if err := q.Select("outcome, COUNT(*) AS total").Group("outcome").Scan(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count incidences by outcome: %w", err)
	}
	counts := map[string]int64{
		string(models.OutcomeInProgress): 0,
		string(models.OutcomeResolved):   0,
		string(models.OutcomeDropped):    0,
		string(models.OutcomeConverted):  0,
	}
	var total int64
	for _, r := range rows {
		counts[r.Outcome] = r.Total
		total += r.Total
	}
	return counts, total, nil
}

// topValues 按列分组计数，忽略空值
func (s *AnalyticsService) topValues(q *gorm.DB, column string, limit int) ([]NamedCount, error) {
	var rows []NamedCount
	err := q.Select(column+" AS name, COUNT(*) AS count").
		Where(column + " IS NOT NULL AND " + column + " <> ''").
		Group(column).
		Order("count DESC, name ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to rank %s: %w", column, err)
	}
	if rows == nil {
		rows = []NamedCount{}
	}
	return rows, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
