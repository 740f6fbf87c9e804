package task

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ApplyDefaults merges default property values into props.
// Returns a new map with defaults applied for missing properties
func ApplyDefaults(defs []PropertyDefinition, props map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(props)+len(defs))

	for k, v := range props {
		result[k] = v
	}

	for _, def := range defs {
		if _, exists := result[def.Name]; !exists && def.Default != nil {
			result[def.Name] = def.Default
		}
	}

	return result
}

// ValidateRequired checks that every required property is present and
// non-empty. All missing names are reported together.
func ValidateRequired(defs []PropertyDefinition, props map[string]interface{}) error {
	var missing []string
	for _, def := range defs {
		if !def.Required {
			continue
		}
		v, ok := props[def.Name]
		if !ok || v == nil {
			missing = append(missing, def.Name)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, def.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required properties: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ParseAssignments converts "key=value" pairs into a property map.
// Values stay strings; typed getters convert them on read.
func ParseAssignments(pairs []string) (map[string]interface{}, error) {
	props := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid property %q, expected key=value", pair)
		}
		props[key] = value
	}
	return props, nil
}

// String returns the property as a string, or "" when unset.
func (ec *ExecutionContext) String(key string) string {
	v, ok := ec.Properties[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Int returns the property as an int. Unset properties yield def.
func (ec *ExecutionContext) Int(key string, def int) (int, error) {
	v, ok := ec.Properties[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		if strings.TrimSpace(n) == "" {
			return def, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return def, fmt.Errorf("property %s: %q is not an integer", key, n)
		}
		return i, nil
	}
	return def, fmt.Errorf("property %s: unsupported type %T", key, v)
}

// Bool returns the property as a bool. Unset properties yield def.
func (ec *ExecutionContext) Bool(key string, def bool) (bool, error) {
	v, ok := ec.Properties[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		if strings.TrimSpace(b) == "" {
			return def, nil
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return def, fmt.Errorf("property %s: %q is not a boolean", key, b)
		}
		return parsed, nil
	}
	return def, fmt.Errorf("property %s: unsupported type %T", key, v)
}

// Duration returns the property as a duration. Bare numbers are seconds;
// strings may also use time.ParseDuration syntax ("90s", "5m").
func (ec *ExecutionContext) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := ec.Properties[key]
	if !ok || v == nil {
		return def, nil
	}
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case int:
		return time.Duration(d) * time.Second, nil
	case int64:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return def, nil
		}
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return def, fmt.Errorf("property %s: %q is not a duration", key, d)
		}
		return parsed, nil
	}
	return def, fmt.Errorf("property %s: unsupported type %T", key, v)
}
