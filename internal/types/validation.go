package types

// Validation constraint constants.
const (
	MinLat   = -90.0
	MaxLat   = 90.0
	MinLon   = -180.0
	MaxLon   = 180.0
	MinYear  = 1981
	MaxYear  = 2100
	MinMonth = 1
	MaxMonth = 12
)
