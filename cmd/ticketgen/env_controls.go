package main

import (
	"os"
	"strings"
)

func envFlagEnabled(name string) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func testModeEnabled() bool {
	return envFlagEnabled("TICKETGEN_TEST_MODE")
}

func debugEnabled() bool {
	return envFlagEnabled("TICKETGEN_DEBUG")
}

func accessibleModeEnabled() bool {
	return envFlagEnabled("ACCESSIBLE")
}
