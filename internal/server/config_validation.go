// config_validation.go - startup-time validation of NFS_* configuration.
//
// Collects every problem and fails fast with one formatted report rather
// than dying on the first bad variable.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type configError struct {
	Field   string
	Message string
}

func (e configError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

type configValidator struct {
	errors []configError
}

func newConfigValidator() *configValidator {
	return &configValidator{}
}

func (v *configValidator) addError(field, message string) {
	v.errors = append(v.errors, configError{Field: field, Message: message})
}

func (v *configValidator) hasErrors() bool {
	return len(v.errors) > 0
}

func (v *configValidator) err() error {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration invalid (%d error(s)):", len(v.errors)))
	for _, e := range v.errors {
		sb.WriteString("\n  " + e.Error())
	}
	return fmt.Errorf("%s", sb.String())
}

// bytesOr reads key as a positive byte count, registering an error and
// returning the default on bad input.
func (v *configValidator) bytesOr(key string, def int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := parseBytes(raw)
	if err != nil {
		v.addError(key, "must be a byte count")
		return def
	}
	if n <= 0 {
		v.addError(key, "must be positive")
		return def
	}
	return n
}

// durationOr reads key as a time.Duration string (e.g. "12h", "30m").
func (v *configValidator) durationOr(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		v.addError(key, "must be a duration such as 24h or 30m")
		return def
	}
	if d <= 0 {
		v.addError(key, "must be positive")
		return def
	}
	return d
}

func (v *configValidator) validatePort(key, value string) {
	if value == "" {
		return
	}
	// Accept ":3000" as well as "host:3000".
	idx := strings.LastIndex(value, ":")
	if idx < 0 {
		v.addError(key, "must contain a port, e.g. :3000")
		return
	}
	port, err := strconv.Atoi(value[idx+1:])
	if err != nil {
		v.addError(key, "port must be a number")
		return
	}
	if port < 1 || port > 65535 {
		v.addError(key, "port must be between 1 and 65535")
	}
}

func (v *configValidator) validateEnum(key, value string, allowed []string) {
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}
	v.addError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}
