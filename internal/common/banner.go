package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the resolved run settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("PriceWatch", GetVersion())

	logger.Info().
		Str("inventory", config.Inventory.Path).
		Str("report_dir", config.Report.Dir).
		Str("report_format", config.Report.Format).
		Str("provider", config.Provider.Engine).
		Bool("provider_key_set", config.Provider.APIKey != "").
		Msg("Reconciliation settings")
}
