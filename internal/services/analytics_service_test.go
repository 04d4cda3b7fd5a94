package services

import (
	"context"
	"testing"
	"time"

	"supportdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticsService_KPIs(t *testing.T) {
	store, clock := newTestStore(t)
	analytics := NewAnalyticsService(store.db, quietLogger())
	analytics.SetClock(clock.Now)
	ctx := context.Background()

	// 前一天的数据不计入
	yesterday := newTestClock()
	yesterday.Advance(-24 * time.Hour)
	store.SetClock(yesterday.Now)
	_, err := store.Create(ctx, &IncidenceCreateRequest{UserID: "old", AppScreen: "menu"})
	require.NoError(t, err)
	store.SetClock(clock.Now)

	a, err := store.Create(ctx, &IncidenceCreateRequest{UserID: "u1", AppScreen: "checkout", FrictionScore: 60})
	require.NoError(t, err)
	b, err := store.Create(ctx, &IncidenceCreateRequest{UserID: "u2", AppScreen: "checkout", FrictionScore: 20})
	require.NoError(t, err)
	_, err = store.Create(ctx, &IncidenceCreateRequest{UserID: "u3", AppScreen: "menu", Channel: models.ChannelCall})
	require.NoError(t, err)
	_, err = store.Create(ctx, &IncidenceCreateRequest{UserID: "u4"})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = store.Close(ctx, a.ID, &CloseRequest{Outcome: models.OutcomeConverted, IssueCategory: strPtr("pricing")})
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	_, err = store.Close(ctx, b.ID, &CloseRequest{Outcome: models.OutcomeDropped, IssueCategory: strPtr("pricing")})
	require.NoError(t, err)

	k, err := analytics.KPIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", k.Date)
	assert.Equal(t, int64(4), k.TotalIncidences)
	assert.Equal(t, int64(2), k.OpenIncidences)
	assert.Equal(t, int64(1), k.ByOutcome["CONVERTED"])
	assert.Equal(t, int64(0), k.ByOutcome["RESOLVED"])
	assert.Equal(t, int64(180), k.AvgResolutionSeconds)
	assert.Equal(t, 25.0, k.AssistedConversionRate)
	assert.Equal(t, int64(1), k.CallRequests)
	assert.Equal(t, 20.0, k.AvgFrictionScore)
	require.Len(t, k.TopFrictionScreens, 2)
	assert.Equal(t, NamedCount{Name: "checkout", Count: 2}, k.TopFrictionScreens[0])
	assert.Equal(t, []NamedCount{{Name: "pricing", Count: 2}}, k.TopIssueCategories)
}

func TestAnalyticsService_WeeklyReport(t *testing.T) {
	store, clock := newTestStore(t)
	analytics := NewAnalyticsService(store.db, quietLogger())
	analytics.SetClock(clock.Now)
	ctx := context.Background()

	for i, cat := range []string{"menu items", "menu items", "delivery slot"} {
		inc, err := store.Create(ctx, &IncidenceCreateRequest{UserID: "u"})
		require.NoError(t, err)
		clock.Advance(time.Duration(10+i*5) * time.Minute)
		_, err = store.Close(ctx, inc.ID, &CloseRequest{Outcome: models.OutcomeResolved, IssueCategory: strPtr(cat)})
		require.NoError(t, err)
	}
	_, err := store.Create(ctx, &IncidenceCreateRequest{UserID: "u"})
	require.NoError(t, err)

	r, err := analytics.WeeklyReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-23", r.PeriodStart)
	assert.Equal(t, "2024-03-01", r.PeriodEnd)
	assert.Equal(t, int64(4), r.TotalIncidences)
	assert.Equal(t, 15.0, r.AvgResolutionMinutes)
	require.Len(t, r.TopFrictionReasons, 2)
	assert.Equal(t, ReasonShare{Category: "menu items", Count: 2, Percentage: 50}, r.TopFrictionReasons[0])
	assert.Equal(t, []string{
		"Average resolution time >10 min. Consider adding FAQs for common issues.",
		"Menu confusion detected. Consider improving item descriptions.",
		"Delivery questions common. Add delivery info to checkout page.",
	}, r.ProductRecommendations)
}

func TestRecommendations_Default(t *testing.T) {
	assert.Equal(t, []string{"No critical friction patterns detected this week."}, Recommendations(nil, 3))
}
