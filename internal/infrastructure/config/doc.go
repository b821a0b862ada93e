// Package config provides configuration loading for Homepulse Core.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by HOMEPULSE_* environment variables. The loaded
// Config value is threaded explicitly through constructors; there is no
// package-level mutable configuration state.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
package config
