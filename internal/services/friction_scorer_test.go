package services

import (
	"testing"

	"supportdesk/internal/config"

	"github.com/stretchr/testify/assert"
)

func defaultScorer() *FrictionScorer {
	return NewFrictionScorer(config.GetDefaultConfig().Friction)
}

func sumBreakdown(b map[string]int) int {
	total := 0
	for _, v := range b {
		total += v
	}
	return total
}

func TestFrictionScorer_NoSignals(t *testing.T) {
	res := defaultScorer().Score(FrictionSignals{UserID: "u1"})
	assert.Equal(t, 0, res.Score)
	assert.False(t, res.ShouldShowHelp)
	assert.Empty(t, res.HelpMessage)
	assert.Empty(t, res.Breakdown)
}

func TestFrictionScorer_ThresholdsAreStrict(t *testing.T) {
	s := defaultScorer()
	res := s.Score(FrictionSignals{InactivitySeconds: 60, BackNavCount: 3, PriceCheckCount: 5, PaymentRetryCount: 1})
	assert.Equal(t, 0, res.Score)

	res = s.Score(FrictionSignals{InactivitySeconds: 61, BackNavCount: 4})
	assert.Equal(t, 55, res.Score)
	assert.Equal(t, 30, res.Breakdown[SignalInactivity])
	assert.Equal(t, 25, res.Breakdown[SignalBackNavigation])
	assert.True(t, res.ShouldShowHelp)
	assert.Equal(t, HelpMessageDefault, res.HelpMessage)
}

func TestFrictionScorer_CapKeepsBreakdownConsistent(t *testing.T) {
	res := defaultScorer().Score(FrictionSignals{
		InactivitySeconds: 600,
		BackNavCount:      10,
		PriceCheckCount:   10,
		PaymentRetryCount: 3,
		EventType:         "wedding",
		IsFirstTimeUser:   true,
		CurrentScreen:     "Checkout",
	})
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, res.Score, sumBreakdown(res.Breakdown))
	assert.Len(t, res.Breakdown, 6)
	assert.Equal(t, HelpMessagePayment, res.HelpMessage)
}

func TestFrictionScorer_MaxScoreNeverAbove100(t *testing.T) {
	cfg := config.GetDefaultConfig().Friction
	cfg.MaxScore = 250
	scorer := NewFrictionScorer(cfg)
	assert.Equal(t, 100, scorer.Config().MaxScore)

	res := scorer.Score(FrictionSignals{
		InactivitySeconds: 600,
		BackNavCount:      10,
		PriceCheckCount:   10,
		PaymentRetryCount: 3,
		EventType:         "wedding",
		IsFirstTimeUser:   true,
	})
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, res.Score, sumBreakdown(res.Breakdown))
}

func TestFrictionScorer_NegativeCountsIgnored(t *testing.T) {
	res := defaultScorer().Score(FrictionSignals{InactivitySeconds: -500, BackNavCount: -9, PaymentRetryCount: -2})
	assert.Equal(t, 0, res.Score)
}

func TestFrictionScorer_HelpBoundary(t *testing.T) {
	cfg := config.GetDefaultConfig().Friction
	cfg.HelpThreshold = 40
	res := NewFrictionScorer(cfg).Score(FrictionSignals{PaymentRetryCount: 2, CurrentScreen: "menu_builder"})
	assert.Equal(t, 40, res.Score)
	assert.True(t, res.ShouldShowHelp)
	assert.Equal(t, HelpMessageMenu, res.HelpMessage)
}

func TestHelpMessageFor(t *testing.T) {
	assert.Equal(t, HelpMessageCheckout, HelpMessageFor("cart", 0))
	assert.Equal(t, HelpMessagePayment, HelpMessageFor("cart", 1))
	assert.Equal(t, HelpMessageMenu, HelpMessageFor("platter_select", 0))
	assert.Equal(t, HelpMessageCustomization, HelpMessageFor("customize", 0))
	assert.Equal(t, HelpMessageDefault, HelpMessageFor("", 0))
}

func TestFrictionScorer_Interpret(t *testing.T) {
	s := defaultScorer()
	cases := map[int]string{0: "MINIMAL", 19: "MINIMAL", 20: "LOW", 40: "MODERATE", 60: "HIGH", 80: "CRITICAL", 100: "CRITICAL"}
	for score, level := range cases {
		assert.Equal(t, level, s.Interpret(score).Level, "score %d", score)
	}
}
