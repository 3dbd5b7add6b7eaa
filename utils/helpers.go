package utils

import (
	"os"
	"strings"
)

func IsValidInterval(interval string) bool {
	switch interval {
	case "Minute", "Hour", "Day", "Week", "Month", "Quarter", "Year":
		return true
	default:
		return false
	}
}

// HiddenAccounts returns the configured set of account emails excluded from
// fleet reporting, parsed from the HIDDEN_ACCOUNTS environment variable
// (comma-separated).
func HiddenAccounts() map[string]struct{} {
	hidden := make(map[string]struct{})
	for _, email := range strings.Split(os.Getenv("HIDDEN_ACCOUNTS"), ",") {
		email = strings.TrimSpace(email)
		if email != "" {
			hidden[email] = struct{}{}
		}
	}
	return hidden
}
