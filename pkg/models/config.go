package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// Execution defaults applied when the config leaves fields zero.
const (
	DefaultParallelism  = 4
	DefaultPollInterval = 5 * time.Second
)

var errStepsOrTemplate = errors.New("either template_id or steps must be provided, not both")

// ExecutionConfig is the caller-facing configuration consumed at execute
// time. Exactly one of TemplateID or Steps must be set.
type ExecutionConfig struct {
	TemplateID   string         `json:"template_id,omitempty"`
	Steps        []*Step        `json:"steps,omitempty"        validate:"omitempty,dive"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Resumable    bool           `json:"resumable"`
	Parallelism  int            `json:"parallelism,omitempty"  validate:"min=0,max=64"`
	PollInterval time.Duration  `json:"poll_interval,omitempty"`
}

var validate = validator.New()

// Validate checks structural constraints before any step runs.
func (c *ExecutionConfig) Validate() error {
	if (c.TemplateID == "") == (len(c.Steps) == 0) {
		return errStepsOrTemplate
	}

	return validate.Struct(c)
}

// EffectiveParallelism returns the configured batch width or the default.
func (c *ExecutionConfig) EffectiveParallelism() int {
	if c.Parallelism <= 0 {
		return DefaultParallelism
	}

	return c.Parallelism
}

// EffectivePollInterval returns the monitor polling interval or the default.
func (c *ExecutionConfig) EffectivePollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return DefaultPollInterval
	}

	return c.PollInterval
}
