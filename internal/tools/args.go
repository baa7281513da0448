package tools

import (
	"time"
)

// Argument extraction helpers. JSON numbers arrive as float64; time
// arguments arrive as strings in RFC 3339 or a few looser layouts the
// model tends to produce.

func argString(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok && v != ""
}

func argFloat(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func argInt64(args map[string]any, key string) (int64, bool) {
	f, ok := argFloat(args, key)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

func argBool(args map[string]any, key string) (bool, bool) {
	v, ok := args[key].(bool)
	return v, ok
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func argTime(args map[string]any, key string, loc *time.Location) (time.Time, bool) {
	s, ok := argString(args, key)
	if !ok {
		return time.Time{}, false
	}
	t, ok := parseTime(s, loc)
	return t, ok
}

func parseTime(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if layout == time.RFC3339 {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
