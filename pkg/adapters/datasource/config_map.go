package datasource

import (
	"fmt"
	"os"
	"strconv"
)

// ConfigString returns a non-empty string setting.
func ConfigString(config map[string]any, key string) (string, bool) {
	s, ok := config[key].(string)
	return s, ok && s != ""
}

// ConfigInt returns an integer setting, accepting YAML ints, JSON numbers
// and numeric strings.
func ConfigInt(config map[string]any, key string, def int) (int, error) {
	switch v := config[key].(type) {
	case nil:
		return def, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64: // JSON numbers are float64
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}

// ConfigBool returns a boolean setting, accepting "true"/"false" strings.
func ConfigBool(config map[string]any, key string, def bool) bool {
	switch v := config[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// ResolvePassword returns the inline password, or the value of the
// environment variable named by password_env. Registry files should use
// password_env so secrets never live on disk.
func ResolvePassword(config map[string]any) (string, error) {
	if envName, ok := ConfigString(config, "password_env"); ok {
		value, set := os.LookupEnv(envName)
		if !set {
			return "", fmt.Errorf("password_env %s is not set", envName)
		}
		return value, nil
	}
	password, _ := config["password"].(string)
	return password, nil
}
