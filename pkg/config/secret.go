package config

import (
	"fmt"
	"strings"
)

// RequireSecret rejects empty, placeholder or short secrets outside of the
// development environment. In development only emptiness is checked.
func RequireSecret(name, value, environment string, minLen int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must be set", name)
	}
	if environment == "development" || environment == "test" {
		return nil
	}
	if len(value) < minLen {
		return fmt.Errorf("%s must be at least %d characters in %s", name, minLen, environment)
	}
	if strings.Contains(strings.ToLower(value), "change-me") {
		return fmt.Errorf("%s still holds the placeholder value", name)
	}
	return nil
}
