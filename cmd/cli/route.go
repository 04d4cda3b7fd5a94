package cli

import (
	"fmt"

	"supportdesk/internal/services"

	"github.com/spf13/cobra"
)

var (
	routeReq      services.ChannelRequest
	routeFriction int
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Show which support channels an order would be offered",
	RunE: func(cmd *cobra.Command, args []string) error {
		if routeReq.OrderValue < 0 {
			return fmt.Errorf("order value must not be negative")
		}
		if cmd.Flags().Changed("friction") {
			routeReq.FrictionScore = &routeFriction
		}
		cfg := quietConfig()
		decision := services.NewChannelRouter(cfg.Routing).Route(routeReq)
		return printJSON(cmd, decision)
	},
}

func init() {
	f := routeCmd.Flags()
	f.Float64Var(&routeReq.OrderValue, "order-value", 0, "order value")
	f.StringVar(&routeReq.EventType, "event-type", "", "event type being booked")
	f.IntVar(&routeFriction, "friction", 0, "current friction score")
	rootCmd.AddCommand(routeCmd)
}
