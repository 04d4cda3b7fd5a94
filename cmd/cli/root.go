package cli

import (
	"fmt"
	"os"

	"supportdesk/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "supportctl",
	Short: "Support desk service and operator tooling",
	Long: `supportctl runs the support desk API (chat webhooks, incidence lifecycle,
friction scoring, channel routing) and offers operator commands for
migrations and inspecting incidences.`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yml)")
}

func initConfig() {
	if err := config.SetupViper(cfgFile); err != nil {
		fmt.Println("Error reading config file:", err)
	}
}

// loadConfig 读取配置并初始化日志
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// quietConfig 读取配置，日志只输出警告以上，供查询类命令使用
func quietConfig() *config.Config {
	cfg := config.Load()
	logrus.SetLevel(logrus.WarnLevel)
	return cfg
}
