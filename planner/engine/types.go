package engine

import "math"

// Category classifies a marker
type Category string

const (
	Food     Category = "food"
	Ride     Category = "ride"
	Show     Category = "show"
	Shop     Category = "shop"
	Restroom Category = "restroom"
	Service  Category = "service"
	Photo    Category = "photo"
	Misc     Category = "misc"

	// CoordinateEpsilon is the per-axis tolerance, in degrees, used when a plan
	// item is matched to an existing marker by position.
	CoordinateEpsilon = 1e-6

	// DefaultLabelPrefix prefixes the creation ordinal of unlabeled markers.
	DefaultLabelPrefix = "Marker"
)

// Categories lists every category in display order
var Categories = []Category{Food, Ride, Show, Shop, Restroom, Service, Photo, Misc}

// ParseCategory returns the category named by s
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	_, ok := ParseCategory(string(c))
	return ok
}

// Position is a WGS84 latitude/longitude pair in degrees
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both coordinates are finite
func (p Position) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lng) && !math.IsInf(p.Lng, 0)
}

// Near reports whether p and o differ by less than eps on both axes
func (p Position) Near(o Position, eps float64) bool {
	return math.Abs(p.Lat-o.Lat) < eps && math.Abs(p.Lng-o.Lng) < eps
}

// Marker is a user-placed point of interest
type Marker struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Label    string   `json:"label"`
	Category Category `json:"category"`
}

// MarkerPatch carries the fields to change on Update. Nil fields are left untouched.
type MarkerPatch struct {
	Label    *string   `json:"label,omitempty"`
	Category *Category `json:"category,omitempty"`
	Position *Position `json:"position,omitempty"`
}

// ViewMode selects which rendering rule applies to icons and lists
type ViewMode string

const (
	ModeMarkers ViewMode = "markers"
	ModePlan    ViewMode = "plan"
)

// ParseViewMode returns the view mode named by s
func ParseViewMode(s string) (ViewMode, bool) {
	switch ViewMode(s) {
	case ModeMarkers, ModePlan:
		return ViewMode(s), true
	}
	return "", false
}

// Filter is either FilterAll or a category name
type Filter string

// FilterAll shows every marker
const FilterAll Filter = "all"

// ParseFilter returns the filter named by s. An empty string selects FilterAll.
func ParseFilter(s string) (Filter, bool) {
	if s == "" || Filter(s) == FilterAll {
		return FilterAll, true
	}
	if c, ok := ParseCategory(s); ok {
		return Filter(c), true
	}
	return "", false
}

// Matches reports whether a marker of category c passes the filter
func (f Filter) Matches(c Category) bool {
	return f == FilterAll || f == "" || Category(f) == c
}

// AppendOutcome distinguishes a fresh plan insertion from a repeated one
type AppendOutcome int

const (
	AppendAdded AppendOutcome = iota
	AppendAlreadyPresent
)

func (o AppendOutcome) String() string {
	if o == AppendAlreadyPresent {
		return "already_present"
	}
	return "added"
}
