// internal/pkg/device/risk.go
package device

// Risk levels and recommendations.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"

	RecommendAllow                  = "allow_normal_access"
	RecommendEmailVerification      = "require_email_verification"
	RecommendMFA                    = "require_multi_factor_authentication"
	RecommendAdditionalVerification = "require_additional_verification"
)

// Risk is the result of device risk scoring.
type Risk struct {
	Score          int
	Level          string
	Factors        []string
	Recommendation string
}

// AnalyzeRisk scores a device additively from its attributes and the
// user's session history depth. Thresholds: <25 low, 25-49 medium,
// >=50 high.
func AnalyzeRisk(info Info, historyCount int) Risk {
	score := 0
	var factors []string

	if info.Platform == "" || info.Platform == "unknown" {
		score += 20
		factors = append(factors, "unknown_platform")
	}
	if info.Model == "" || info.Model == "unknown" {
		score += 15
		factors = append(factors, "unknown_model")
	}
	if info.Version == "" || info.Version == "unknown" {
		score += 10
		factors = append(factors, "unknown_version")
	}

	if historyCount == 0 {
		score += 25
		factors = append(factors, "new_device")
	} else if historyCount < 5 {
		score += 10
		factors = append(factors, "limited_history")
	}

	level := RiskLow
	switch {
	case score >= 50:
		level = RiskHigh
	case score >= 25:
		level = RiskMedium
	}

	return Risk{
		Score:          score,
		Level:          level,
		Factors:        factors,
		Recommendation: recommendationFor(level),
	}
}

// MaxRisk is the fail-closed result used when risk analysis itself
// cannot complete. Analysis failure is treated as a security event, the
// opposite of the fail-open new-device check.
func MaxRisk() Risk {
	return Risk{
		Score:          100,
		Level:          RiskHigh,
		Factors:        []string{"analysis_error"},
		Recommendation: RecommendAdditionalVerification,
	}
}

func recommendationFor(level string) string {
	switch level {
	case RiskLow:
		return RecommendAllow
	case RiskMedium:
		return RecommendEmailVerification
	case RiskHigh:
		return RecommendMFA
	}
	return "deny_access"
}
