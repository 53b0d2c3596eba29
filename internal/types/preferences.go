// Package types provides type definitions for the data threaded through the job-agent workflow.
package types

import (
	"github.com/go-playground/validator/v10"
)

// Preferences captures what the user is looking for. Set once at workflow start.
type Preferences struct {
	Keywords        []string `json:"keywords" yaml:"keywords" validate:"required,min=1,dive,required"`
	Location        string   `json:"location,omitempty" yaml:"location"`
	JobType         string   `json:"job_type,omitempty" yaml:"job_type" validate:"omitempty,oneof=full-time part-time contract internship remote"`
	SalaryMin       int      `json:"salary_min,omitempty" yaml:"salary_min" validate:"gte=0"`
	Skills          []string `json:"skills,omitempty" yaml:"skills"`
	ExperienceLevel string   `json:"experience_level,omitempty" yaml:"experience_level"`
	// Paused stops the agents from doing any work for this user.
	Paused bool `json:"paused,omitempty" yaml:"paused"`
}

// Validate validates the Preferences using the validator.
func (p *Preferences) Validate() error {
	validate := validator.New()
	return validate.Struct(p)
}
