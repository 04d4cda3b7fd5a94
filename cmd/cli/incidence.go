package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"supportdesk/internal/app"
	"supportdesk/internal/services"
	"supportdesk/pkg/utils"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	listUserID   string
	listOutcome  string
	listPage     int
	listPageSize int
)

var incidenceCmd = &cobra.Command{
	Use:   "incidence",
	Short: "Inspect support incidences",
}

var incidenceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List incidences, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeDB, err := openIncidenceService()
		if err != nil {
			return err
		}
		defer closeDB()

		list, total, err := svc.List(cmd.Context(), &services.IncidenceListRequest{
			UserID:   listUserID,
			Outcome:  listOutcome,
			Page:     listPage,
			PageSize: listPageSize,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tCHANNEL\tOUTCOME\tFRICTION\tCREATED")
		for _, inc := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				inc.ID, inc.UserID, inc.Channel, inc.Outcome, inc.FrictionScore,
				utils.FormatTime(inc.CreatedAt))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d incidences\n", len(list), total)
		return nil
	},
}

var incidenceShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an incidence with its timeline as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeDB, err := openIncidenceService()
		if err != nil {
			return err
		}
		defer closeDB()

		inc, err := svc.GetWithTimeline(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if inc == nil {
			return fmt.Errorf("incidence %s not found", args[0])
		}
		return printJSON(cmd, inc)
	},
}

func init() {
	incidenceListCmd.Flags().StringVar(&listUserID, "user", "", "filter by user id")
	incidenceListCmd.Flags().StringVar(&listOutcome, "outcome", "", "filter by outcome (IN_PROGRESS, RESOLVED, DROPPED, CONVERTED)")
	incidenceListCmd.Flags().IntVar(&listPage, "page", 1, "page number")
	incidenceListCmd.Flags().IntVar(&listPageSize, "page-size", 20, "page size")

	incidenceCmd.AddCommand(incidenceListCmd, incidenceShowCmd)
	rootCmd.AddCommand(incidenceCmd)
}

func openIncidenceService() (*services.IncidenceService, func(), error) {
	cfg := quietConfig()
	log := logrus.StandardLogger()
	db, err := app.OpenDatabase(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return services.NewIncidenceService(db, log), func() { closeDatabase(db) }, nil
}

func closeDatabase(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
