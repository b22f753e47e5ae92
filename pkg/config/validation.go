package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tag constraints and cross-field rules.
//
// Validation does not normalize values; ApplyDefaults does.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed '%s' (value: %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return errors.New("telemetry: endpoint is required when telemetry is enabled")
	}

	switch cfg.Storage.Type {
	case StorageBadger, StorageSQLite:
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage: path is required for %s", cfg.Storage.Type)
		}
	case StoragePostgres:
		pg := cfg.Storage.Postgres
		if pg.Host == "" || pg.Database == "" || pg.User == "" {
			return errors.New("storage: postgres host, database and user are required")
		}
	}

	return nil
}
