package config

import (
	"os"
	"strconv"
	"strings"
)

// StrictPaidImmutability enables fintech-grade guardrails:
// paid transactions cannot be edited at all (not even notes); corrections
// require cancelling and recreating.
//
// Set via env:
// - STRICT_PAID_IMMUTABLE=true
func StrictPaidImmutability() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_PAID_IMMUTABLE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// RecurringHorizonMonths controls how far ahead open-ended recurring series
// are materialized into pending instances.
//
// Set via env:
// - RECURRING_HORIZON_MONTHS=3
func RecurringHorizonMonths() int {
	raw := strings.TrimSpace(os.Getenv("RECURRING_HORIZON_MONTHS"))
	if raw == "" {
		return 3
	}
	months, err := strconv.Atoi(raw)
	if err != nil || months <= 0 {
		return 3
	}
	return months
}
