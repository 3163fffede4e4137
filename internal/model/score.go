package model

// Score bounds and risk thresholds.
const (
	MinScore = 0
	MaxScore = 100

	// HighRiskThreshold is the lowest score rated HIGH.
	HighRiskThreshold = 70

	// MediumRiskThreshold is the lowest score rated MEDIUM.
	MediumRiskThreshold = 40
)

// RiskLevel is the coarse rating derived from a honeypot score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// RiskLevelFor maps a score to its risk level.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score >= HighRiskThreshold:
		return RiskHigh
	case score >= MediumRiskThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ClampScore limits score to [MinScore, MaxScore].
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// ScoreRecord is the honeypot assessment of one server.
type ScoreRecord struct {
	Host          string    `json:"host"`
	Port          int       `json:"port"`
	HoneypotScore int       `json:"honeypot_score"`
	RiskLevel     RiskLevel `json:"risk_level"`
	Signals       []string  `json:"signals"`
}

// Address returns host:port.
func (s ScoreRecord) Address() string {
	return JoinHostPort(s.Host, s.Port)
}
