package config

import "flag"

// parseFlags overlays command-line flags onto cfg. Flags win over every
// other source.
func parseFlags(cfg *Config) {
	if flag.Lookup("a") == nil {
		flag.StringVar(&cfg.Addr, "a", cfg.Addr, "address to listen on")
		flag.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "PostgreSQL DSN")
		flag.StringVar(&cfg.Redis.URL, "r", cfg.Redis.URL, "Redis URL")
	}
	flag.Parse()
}
