package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"adhoc_rdv/internal/dataType"
)

// ParseRate parses "limit/<n><s|m|h>", for example "300/10s".
func ParseRate(s string) (dataType.RateLimit, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return dataType.RateLimit{}, fmt.Errorf("unexpected rate format: %s", s)
	}
	limit, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || limit <= 0 {
		return dataType.RateLimit{}, fmt.Errorf("unexpected rate format: %s", s)
	}

	timeStr := parts[1]
	if len(timeStr) < 2 {
		return dataType.RateLimit{}, fmt.Errorf("unexpected time format: %s", timeStr)
	}
	unit := timeStr[len(timeStr)-1]
	value, err := strconv.Atoi(timeStr[:len(timeStr)-1])
	if err != nil || value <= 0 {
		return dataType.RateLimit{}, fmt.Errorf("unexpected time format: %s", timeStr)
	}
	var window time.Duration
	switch unit {
	case 's':
		window = time.Duration(value) * time.Second
	case 'm':
		window = time.Duration(value) * time.Minute
	case 'h':
		window = time.Duration(value) * time.Hour
	default:
		return dataType.RateLimit{}, fmt.Errorf("unexpected time unit: %s", string(unit))
	}
	return dataType.RateLimit{Limit: limit, Window: window}, nil
}
