package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers toolgate-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("abs_path", validateAbsPath); err != nil {
		return fmt.Errorf("failed to register abs_path validator: %w", err)
	}
	return nil
}

// validateAbsPath requires an absolute filesystem path.
func validateAbsPath(fl validator.FieldLevel) bool {
	return filepath.IsAbs(fl.Field().String())
}

// Validate validates the Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateDistinctTierDirs(); err != nil {
		return err
	}

	return nil
}

// validateDistinctTierDirs ensures no directory is claimed by two tiers,
// which would make its trust level ambiguous.
func (c *Config) validateDistinctTierDirs() error {
	seen := make(map[string]string)
	check := func(dirs []string, tier string) error {
		for _, d := range dirs {
			if prev, ok := seen[d]; ok {
				return fmt.Errorf("policy: directory %q listed under both %s and %s tiers", d, prev, tier)
			}
			seen[d] = tier
		}
		return nil
	}

	for _, group := range []struct {
		dirs []string
		tier string
	}{
		{c.Policy.DefaultDirs, "default"},
		{c.Policy.ExtensionDirs, "extension"},
		{c.Policy.WorkspaceDirs, "workspace"},
		{c.Policy.UserDirs, "user"},
		{c.Policy.AdminDirs, "admin"},
	} {
		if err := check(group.dirs, group.tier); err != nil {
			return err
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "abs_path":
		return fmt.Sprintf("%s must be an absolute path", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
