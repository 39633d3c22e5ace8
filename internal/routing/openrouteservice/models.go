package openrouteservice

// orsRequest represents the ORS directions API request body for a round trip.
type orsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"`
	Options      *orsOptions `json:"options,omitempty"`
	Elevation    bool        `json:"elevation"`
	ExtraInfo    []string    `json:"extra_info,omitempty"`
	Instructions bool        `json:"instructions"`
	Geometry     bool        `json:"geometry"`
	Units        string      `json:"units"`
}

type orsOptions struct {
	RoundTrip *roundTripOpts `json:"round_trip,omitempty"`
}

// roundTripOpts configures round trip generation. Different seeds yield
// geometrically different loops of roughly the same length.
type roundTripOpts struct {
	Length float64 `json:"length"`
	Points int     `json:"points"`
	Seed   int     `json:"seed"`
}

// orsResponse represents the ORS directions API response.
type orsResponse struct {
	Routes   []orsRoute `json:"routes"`
	BBox     []float64  `json:"bbox,omitempty"`
	Metadata *metadata  `json:"metadata,omitempty"`
}

// metadata contains response metadata.
type metadata struct {
	Attribution string `json:"attribution,omitempty"`
	Service     string `json:"service,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

// orsRoute represents a single route in the ORS response.
type orsRoute struct {
	Summary   routeSummary     `json:"summary"`
	BBox      []float64        `json:"bbox,omitempty"`
	Geometry  string           `json:"geometry"`
	WayPoints []int            `json:"way_points,omitempty"`
	Warnings  []routeWarning   `json:"warnings,omitempty"`
	Extras    map[string]extra `json:"extras,omitempty"`
}

// routeSummary contains summary information for a route.
type routeSummary struct {
	Distance float64 `json:"distance"` // meters
	Duration float64 `json:"duration"` // seconds
	Ascent   float64 `json:"ascent"`   // meters, only with elevation
	Descent  float64 `json:"descent"`
}

// routeWarning represents a warning for the entire route.
type routeWarning struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// extra carries per-edge attributes such as green or noise indices.
type extra struct {
	Values  [][]float64 `json:"values,omitempty"`
	Summary []summary   `json:"summary,omitempty"`
}

// summary provides summary statistics for extras. Amount is the share of the
// route, in percent, that has Value.
type summary struct {
	Value    float64 `json:"value"`
	Distance float64 `json:"distance"`
	Amount   float64 `json:"amount"`
}

// orsErrorResponse represents an error response from ORS.
type orsErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Info string `json:"info,omitempty"`
}

// ORS error codes for error mapping.
const (
	orsErrorCodeNotFound = 2009 // Route not found
)

// Extra info keys and their index scale (0-10).
const (
	extraGreen = "green"
	extraNoise = "noise"
	extraScale = 10.0
)
