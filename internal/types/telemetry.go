package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricAPILatency       = "APILatency"
	MetricAPIRequests      = "APIRequests"
	MetricUpstreamCall     = "UpstreamCall"
	MetricModelTrained     = "ModelTrained"
	MetricReportGenerated  = "ReportGenerated"
	MetricArtifactsExpired = "ArtifactsExpired"

	// Dimension Keys
	DimEndpoint   = "Endpoint"
	DimMethod     = "Method"
	DimStatusCode = "StatusCode"
	DimSource     = "Source"
	DimOutcome    = "Outcome"
	DimPrefix     = "Prefix"
)
