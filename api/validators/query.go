package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/analytics"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
)

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseDateRange reads from/to (RFC3339) or preset from the query string.
func ParseDateRange(r *http.Request, now time.Time, defaultPreset string) (events.DateRange, error) {
	q := r.URL.Query()
	preset := q.Get("preset")
	if strings.TrimSpace(preset) == "" {
		preset = defaultPreset
	}
	return analytics.ResolveRange(q.Get("from"), q.Get("to"), preset, now)
}

// ParseTimeUnit reads an optional day/week/month unit; empty returns "".
func ParseTimeUnit(r *http.Request, key string) (enums.TimeUnit, error) {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key)))
	if raw == "" {
		return "", nil
	}
	unit := enums.TimeUnit(raw)
	if !unit.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid time unit").
			WithDetails(map[string]any{"field": key, "allowed": []string{"day", "week", "month"}})
	}
	return unit, nil
}

// ParseQueryList splits repeated or comma separated values, dropping blanks and duplicates.
func ParseQueryList(r *http.Request, key string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, raw := range r.URL.Query()[key] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
