package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// structValidator reports fields by their koanf path so messages match the config file.
func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("koanf"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks struct tags first, then the rules that span sections.
func Validate(cfg *Config) error {
	if cfg == nil {
		return NewValidationError("config", "is nil")
	}

	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return err
	}

	if cfg.Retry.Backoff.Max > 0 && cfg.Retry.Backoff.Max < cfg.Retry.Backoff.Base {
		return NewValidationError("retry.backoff.max", "must not be lower than retry.backoff.base")
	}

	if cfg.Transport.RateLimit > 0 && cfg.Transport.RateBurst == 0 {
		return NewMissingFieldError("transport.rate_burst", EnvPrefix+"TRANSPORT__RATE_BURST", "transport.rate_burst")
	}

	if err := cfg.Observability.Validate(); err != nil {
		return NewValidationError("observability", err.Error())
	}
	return nil
}

// fieldError converts a validator failure into a ConfigError keyed by the koanf path.
func fieldError(fe validator.FieldError) *ConfigError {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required", "required_with":
		envVar := EnvPrefix + strings.ToUpper(strings.ReplaceAll(field, ".", envLevelSeparator))
		return NewMissingFieldError(field, envVar, field)
	case "oneof":
		return NewInvalidFieldError(field, fmt.Sprintf("invalid value %v", fe.Value()), strings.Fields(fe.Param()))
	case "url":
		return NewValidationError(field, "must be a valid URL")
	case "gte", "lt":
		return NewValidationError(field, fmt.Sprintf("must be %s %s", comparison(fe.Tag()), fe.Param()))
	default:
		return NewValidationError(field, fmt.Sprintf("failed %s validation", fe.Tag()))
	}
}

func comparison(tag string) string {
	if tag == "lt" {
		return "lower than"
	}
	return "at least"
}
