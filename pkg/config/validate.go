package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
)

var validate = validator.New()

// Validate checks struct tags and the cross-field rules tags cannot express.
// Every failure wraps cluster.ErrPermanentConfig.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", cluster.ErrPermanentConfig, formatValidationError(err))
	}
	return c.validateCross()
}

func (c *Config) validateCross() error {
	if c.Monitor.MaxWait < c.Monitor.Interval {
		return fmt.Errorf("%w: monitor.max_wait (%v) must not be shorter than monitor.interval (%v)",
			cluster.ErrPermanentConfig, c.Monitor.MaxWait, c.Monitor.Interval)
	}
	return nil
}

// ValidateForPool checks only what the pool-side commands (failover, repair,
// status, watch) need; they run on the pgpool host where no node is configured.
func (c *Config) ValidateForPool() error {
	if err := validate.StructExcept(c, "Node"); err != nil {
		return fmt.Errorf("%w: %v", cluster.ErrPermanentConfig, formatValidationError(err))
	}
	return c.validateCross()
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	for _, e := range validationErrs {
		field := e.Namespace()
		param := e.Param()

		switch e.Tag() {
		case "required", "required_if":
			return fmt.Errorf("%s: field is required", field)
		case "min", "gte":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "gt":
			return fmt.Errorf("%s: must be greater than %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		case "nefield":
			return fmt.Errorf("%s: must differ from %s", field, param)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}

	return err
}
