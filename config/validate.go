package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/poiesic/cinevec/core"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field constraints and cross-section rules.
// Failures wrap core.ErrConfiguration.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %v", core.ErrConfiguration, err)
		}
		msgs := make([]string, len(fieldErrs))
		for i, fe := range fieldErrs {
			msgs[i] = describe(fe)
		}
		return fmt.Errorf("%w: %s", core.ErrConfiguration, strings.Join(msgs, "; "))
	}

	switch c.Index.Backend {
	case BackendBadger:
		if !c.Index.Badger.InMemory && c.Index.Badger.Path == "" {
			return fmt.Errorf("%w: index.badger.path is required unless in_memory is set", core.ErrConfiguration)
		}
	case BackendQdrant:
		if err := c.QdrantIndex().Validate(); err != nil {
			return err
		}
	}
	if c.Index.Collection == c.Concepts.Collection {
		return fmt.Errorf("%w: index and concept collections must differ", core.ErrConfiguration)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "url":
		return field + " must be a URL"
	default:
		return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	}
}
