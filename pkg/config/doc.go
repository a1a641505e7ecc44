// Package config parses environment variables into typed structs.
//
// It wraps github.com/caarlos0/env/v11 for struct-tag parsing and
// github.com/joho/godotenv for optional .env files. Each Load call parses
// afresh and returns the value to the caller; there is no process-wide cache,
// so configuration is read once at startup and passed down explicitly.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg, config.WithEnvFiles(".env.local")); err != nil {
//		return err
//	}
//
// Errors wrap ErrParsingConfig or ErrLoadingEnv and can be matched with
// errors.Is.
package config
