package cli

import (
	"supportdesk/internal/services"

	"github.com/spf13/cobra"
)

var signals services.FrictionSignals

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute a friction score from behaviour signals",
	Long: `Computes the friction score the API would return for the given signals,
using the weights and thresholds from the loaded configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := quietConfig()
		scorer := services.NewFrictionScorer(cfg.Friction)
		res := scorer.Score(signals)
		return printJSON(cmd, struct {
			services.FrictionResult
			Level services.FrictionLevel `json:"level"`
		}{res, scorer.Interpret(res.Score)})
	},
}

func init() {
	f := scoreCmd.Flags()
	f.Float64Var(&signals.InactivitySeconds, "inactivity", 0, "seconds since the last interaction")
	f.IntVar(&signals.BackNavCount, "back-nav", 0, "back navigations in the session")
	f.IntVar(&signals.PriceCheckCount, "price-checks", 0, "price check views in the session")
	f.IntVar(&signals.PaymentRetryCount, "payment-retries", 0, "failed payment attempts")
	f.Float64Var(&signals.CartValue, "cart-value", 0, "current cart value")
	f.BoolVar(&signals.IsFirstTimeUser, "first-time", false, "user has no previous orders")
	f.StringVar(&signals.EventType, "event-type", "", "event type being booked")
	f.StringVar(&signals.CurrentScreen, "screen", "", "current app screen")
	rootCmd.AddCommand(scoreCmd)
}
