package config

import (
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// SetupLogging picks a JSON handler in production and a text handler
// otherwise. An unknown level falls back to info.
func SetupLogging(cfg *Config) {
	if cfg.IsProduction() {
		log.SetHandler(json.New(os.Stderr))
	} else {
		log.SetHandler(text.New(os.Stderr))
	}
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel)))
	if err != nil {
		level = log.InfoLevel
		log.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}
	log.SetLevel(level)
}
