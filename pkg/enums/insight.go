package enums

// InsightKind categorizes generated narrative output.
type InsightKind string

const (
	InsightKindInsight        InsightKind = "insight"
	InsightKindRecommendation InsightKind = "recommendation"
	InsightKindRisk           InsightKind = "risk"
	InsightKindOpportunity    InsightKind = "opportunity"
)

// InsightSource names the engine that produced an insight.
type InsightSource string

const (
	InsightSourceFunnel   InsightSource = "funnel"
	InsightSourceCohort   InsightSource = "cohort"
	InsightSourceForecast InsightSource = "forecast"
)

type InsightSeverity string

const (
	SeverityLow    InsightSeverity = "low"
	SeverityMedium InsightSeverity = "medium"
	SeverityHigh   InsightSeverity = "high"
)
