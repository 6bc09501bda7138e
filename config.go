package apireq

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Client level defaults.
const (
	DefaultMaximum = 5
	DefaultTimeout = 30 * time.Second
)

// DefaultUserAgent is sent when no user agent is configured.
var DefaultUserAgent = "apireq/" + Version

// Config is the validated client configuration assembled from options.
type Config struct {
	BaseURL      string        `validate:"required,url"`
	UserAgent    string        `validate:"-"`
	Domains      []string      `validate:"dive,url"`
	Maximum      int           `validate:"gte=1"`
	TriggerLimit int           `validate:"-"`
	Timeout      time.Duration `validate:"gte=0"`
	CacheSweep   string        `validate:"omitempty,cron"`
}

// callValidation is checked on every call before it is started.
type callValidation struct {
	Method     string   `validate:"required,oneof=GET POST PUT DELETE PATCH HEAD OPTIONS"`
	SingleType Single   `validate:"oneof=queue next prev"`
	Domains    []string `validate:"dive,url"`
	Maximum    int      `validate:"gte=0"`
}

func defaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: DefaultUserAgent,
		Maximum:   DefaultMaximum,
		Timeout:   DefaultTimeout,
	}
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// validateStruct runs v on target and folds every failure into one
// configuration error.
func validateStruct(v *validator.Validate, target any, what string) error {
	err := v.Struct(target)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return newConfigurationError(what+" validation failed", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Namespace(), fe.Tag()))
		}
	}
	return newConfigurationError(what+" validation failed: "+strings.Join(msgs, "; "), err)
}
