// Package template renders the ${...} placeholders of config-defined actions
// and checks JSON responses against expected values.
package template

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"envload/internal/core"
)

// varPattern matches ${var}, ${env:VAR} and ${fn(args)} placeholders.
var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Substitute replaces placeholders in text. Functions draw from rng so a
// seeded actor renders reproducibly; a nil rng uses the shared source.
// Returns all errors joined if several placeholders fail.
func Substitute(text string, vars core.Variables, rng Rand) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}
	if rng == nil {
		rng = sharedRand{}
	}

	var errs []error
	result := varPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-1])

		if strings.HasPrefix(name, "env:") {
			envName := name[4:]
			if val, ok := os.LookupEnv(envName); ok {
				return val
			}
			errs = append(errs, fmt.Errorf("env var %q not set", envName))
			return match
		}

		if val, isFunc, err := evalFunction(name, rng); isFunc {
			if err != nil {
				errs = append(errs, err)
				return match
			}
			return val
		}

		if vars != nil {
			if val, ok := vars.Get(name); ok {
				return fmt.Sprintf("%v", val)
			}
		}
		errs = append(errs, fmt.Errorf("variable %q not found", name))
		return match
	})

	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return result, nil
}

// SubstituteMap applies substitution to all values in a map.
func SubstituteMap(m map[string]string, vars core.Variables, rng Rand) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}

	result := make(map[string]string, len(m))
	var errs []error
	for k, v := range m {
		substituted, err := Substitute(v, vars, rng)
		if err != nil {
			errs = append(errs, fmt.Errorf("%q: %w", k, err))
			continue
		}
		result[k] = substituted
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}
