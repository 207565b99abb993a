package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/fsx/pkg/metastore"
)

// Validate checks the configuration for errors.
//
// Struct tags (validate:"...") cover field-level constraints; the checks
// below cover cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if ok := isValidationErrors(err, &errs); ok {
			return fmt.Errorf("invalid configuration: %s", formatValidationErrors(errs))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry is enabled but no endpoint is configured")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("profiling is enabled but no endpoint is configured")
	}

	if cfg.Metastore.Type == metastore.BackendPostgres && cfg.Metastore.Postgres.Host == "" {
		return fmt.Errorf("metastore.postgres.host is required for the postgres backend")
	}

	if err := validateBackend("storage.hot", &cfg.Storage.Hot); err != nil {
		return err
	}
	if err := validateBackend("storage.warm", &cfg.Storage.Warm); err != nil {
		return err
	}
	if err := validateBackend("storage.cold", &cfg.Storage.Cold); err != nil {
		return err
	}

	if err := cfg.Tier.Validate(); err != nil {
		return err
	}

	return nil
}

// validateBackend checks one tier backend section.
func validateBackend(section string, cfg *BackendConfig) error {
	switch cfg.Type {
	case BackendMemory:
		return nil
	case BackendBadger:
		if cfg.Path == "" {
			return fmt.Errorf("%s.path is required for the badger backend", section)
		}
	case BackendS3:
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("%s.s3.bucket is required for the s3 backend", section)
		}
	}
	return nil
}

// isValidationErrors unwraps validator.ValidationErrors without panicking
// on other error types.
func isValidationErrors(err error, out *validator.ValidationErrors) bool {
	errs, ok := err.(validator.ValidationErrors)
	if ok {
		*out = errs
	}
	return ok
}

// formatValidationErrors renders field errors with lowercase dotted paths
// so messages match config file keys.
func formatValidationErrors(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q validation (param %s)", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q validation", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
