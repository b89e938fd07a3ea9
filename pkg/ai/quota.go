package ai

import (
	"strings"
)

// Published Gemini free-tier quotas. RPM feeds the shared sliding-window
// limiter; RPD feeds the batch-size auto-tuning policy. Values are
// overridable through server config; these are the provider's documented
// defaults.
//
//	model                rpm   rpd
//	2.5 Pro                2    50
//	2.5 Flash             10   250
//	2.5 Flash-Lite        15  1000
//	2.0 Flash             15   200
//	2.0 Flash-Lite        30   200
type quotaEntry struct {
	rpm int
	rpd int
}

func geminiQuota(model string) quotaEntry {
	m := strings.ToLower(model)

	switch {
	case strings.Contains(m, "2.5") && strings.Contains(m, "pro"):
		return quotaEntry{rpm: 2, rpd: 50}
	// flash-lite before flash so the broader pattern does not shadow it
	case strings.Contains(m, "2.5") && strings.Contains(m, "flash-lite"):
		return quotaEntry{rpm: 15, rpd: 1000}
	case strings.Contains(m, "2.5") && strings.Contains(m, "flash"):
		return quotaEntry{rpm: 10, rpd: 250}
	case strings.Contains(m, "2.0") && strings.Contains(m, "flash-lite"):
		return quotaEntry{rpm: 30, rpd: 200}
	case strings.Contains(m, "2.0") && strings.Contains(m, "flash"):
		return quotaEntry{rpm: 15, rpd: 200}
	default:
		return quotaEntry{rpm: 10, rpd: 200}
	}
}

// DefaultRPM returns the requests-per-minute quota for a provider/model pair.
// Zero means no client-side limit (paid providers enforce their own).
func DefaultRPM(provider, model string) int {
	if strings.ToLower(provider) == "gemini" {
		return geminiQuota(model).rpm
	}
	return 0
}

// DefaultRPD returns the requests-per-day quota for a provider/model pair.
// Zero means unknown; callers fall back to row mode.
func DefaultRPD(provider, model string) int {
	if strings.ToLower(provider) == "gemini" {
		return geminiQuota(model).rpd
	}
	return 0
}
