package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wricardo/mcp-training/parkplanner/geo"
	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
)

// Zoom limits accepted for park maps
const (
	MinZoomLevel = 0
	MaxZoomLevel = geo.MaxTileZoom
)

// LatLng is a WGS84 coordinate in a park config file
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// InitialView is where the map opens
type InitialView struct {
	Center LatLng `json:"center" yaml:"center"`
	Zoom   int    `json:"zoom" yaml:"zoom"`
}

// Bounds limits panning to a box
type Bounds struct {
	SouthWest LatLng `json:"south_west" yaml:"south_west"`
	NorthEast LatLng `json:"north_east" yaml:"north_east"`
}

// ParkConfig describes one park map: where its tiles come from, the zoom
// range, the initial view and the datasets loaded on a fresh session.
type ParkConfig struct {
	Name            string      `json:"name" yaml:"name"`
	Description     string      `json:"description" yaml:"description"`
	TileURLTemplate string      `json:"tile_url_template" yaml:"tile_url_template"`
	Attribution     string      `json:"attribution" yaml:"attribution"`
	MinZoom         int         `json:"min_zoom" yaml:"min_zoom"`
	MaxZoom         int         `json:"max_zoom" yaml:"max_zoom"`
	Version         string      `json:"version" yaml:"version"`
	InitialView     InitialView `json:"initial_view" yaml:"initial_view"`
	MaxBounds       *Bounds     `json:"max_bounds,omitempty" yaml:"max_bounds,omitempty"`
	DefaultMarkers  []string    `json:"default_markers,omitempty" yaml:"default_markers,omitempty"`
	DefaultPlan     string      `json:"default_plan,omitempty" yaml:"default_plan,omitempty"`
}

// ParkInfo is the listing entry for a park config
type ParkInfo struct {
	Filename    string `json:"filename"`
	ConfigID    string `json:"config_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MinZoom     int    `json:"min_zoom"`
	MaxZoom     int    `json:"max_zoom"`
}

// ValidateParkConfig checks a park config for usable values
func ValidateParkConfig(c *ParkConfig) error {
	if c.Name == "" {
		return fmt.Errorf("config validation: name is required")
	}
	if c.TileURLTemplate == "" {
		return fmt.Errorf("config validation: tile_url_template is required")
	}
	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(c.TileURLTemplate, p) {
			return fmt.Errorf("config validation: tile_url_template must contain %s", p)
		}
	}
	if strings.Contains(c.TileURLTemplate, "{version}") && c.Version == "" {
		return fmt.Errorf("config validation: version is required when tile_url_template contains {version}")
	}

	if c.MinZoom < MinZoomLevel || c.MaxZoom > MaxZoomLevel || c.MinZoom > c.MaxZoom {
		return fmt.Errorf("config validation: zoom range must satisfy %d <= min_zoom <= max_zoom <= %d, got %d..%d",
			MinZoomLevel, MaxZoomLevel, c.MinZoom, c.MaxZoom)
	}
	if c.InitialView.Zoom < c.MinZoom || c.InitialView.Zoom > c.MaxZoom {
		return fmt.Errorf("config validation: initial_view.zoom must be between %d and %d, got %d",
			c.MinZoom, c.MaxZoom, c.InitialView.Zoom)
	}
	center := c.InitialView.Center
	if !geo.InRange(center.Lat, center.Lng) {
		return fmt.Errorf("config validation: initial_view.center is not a valid coordinate")
	}

	if b := c.MaxBounds; b != nil {
		if !geo.InRange(b.SouthWest.Lat, b.SouthWest.Lng) || !geo.InRange(b.NorthEast.Lat, b.NorthEast.Lng) {
			return fmt.Errorf("config validation: max_bounds corners must be valid coordinates")
		}
		if b.SouthWest.Lat > b.NorthEast.Lat || b.SouthWest.Lng > b.NorthEast.Lng {
			return fmt.Errorf("config validation: max_bounds south_west must be below and left of north_east")
		}
		if !c.Contains(engine.Position{Lat: center.Lat, Lng: center.Lng}) {
			return fmt.Errorf("config validation: initial_view.center lies outside max_bounds")
		}
	}
	return nil
}

// TileURL returns the template with {version} substituted
func (c *ParkConfig) TileURL() string {
	return strings.ReplaceAll(c.TileURLTemplate, "{version}", c.Version)
}

// TileURLFor expands the template for one tile
func (c *ParkConfig) TileURLFor(t geo.Tile) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(t.Z),
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
	)
	return r.Replace(c.TileURL())
}

// Contains reports whether pos lies inside max_bounds. A config without bounds contains everything.
func (c *ParkConfig) Contains(pos engine.Position) bool {
	b := c.MaxBounds
	if b == nil {
		return true
	}
	return pos.Lat >= b.SouthWest.Lat && pos.Lat <= b.NorthEast.Lat &&
		pos.Lng >= b.SouthWest.Lng && pos.Lng <= b.NorthEast.Lng
}

// Zooms lists every zoom level from min to max
func (c *ParkConfig) Zooms() []int {
	zooms := make([]int, 0, c.MaxZoom-c.MinZoom+1)
	for z := c.MinZoom; z <= c.MaxZoom; z++ {
		zooms = append(zooms, z)
	}
	return zooms
}

// TileRanges returns the tiles covering max_bounds at each zoom.
// Zooms outside the park's range are rejected.
func (c *ParkConfig) TileRanges(zooms []int) ([]geo.TileRange, error) {
	if c.MaxBounds == nil {
		return nil, fmt.Errorf("park %s has no max_bounds", c.Name)
	}
	if len(zooms) == 0 {
		zooms = c.Zooms()
	}
	b := c.MaxBounds
	ranges := make([]geo.TileRange, 0, len(zooms))
	for _, z := range zooms {
		if z < c.MinZoom || z > c.MaxZoom {
			return nil, fmt.Errorf("%w: %d outside %d..%d", geo.ErrInvalidZoom, z, c.MinZoom, c.MaxZoom)
		}
		r, err := geo.RangeFor(b.SouthWest.Lat, b.SouthWest.Lng, b.NorthEast.Lat, b.NorthEast.Lng, z)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// builtinDisneyland is used when no park config can be read from disk
func builtinDisneyland() *ParkConfig {
	return &ParkConfig{
		Name:            "disneyland",
		Description:     "Disneyland Resort, Anaheim",
		TileURLTemplate: "https://cdn6.parksmedia.wdprapps.disney.com/media/maps/prod/disneyland/{version}/{z}/{x}/{y}.jpg",
		Attribution:     "&copy; Disney",
		MinZoom:         14,
		MaxZoom:         20,
		Version:         "662638499",
		InitialView: InitialView{
			Center: LatLng{Lat: 33.809092, Lng: -117.918958},
			Zoom:   16,
		},
		MaxBounds: &Bounds{
			SouthWest: LatLng{Lat: 33.75, Lng: -118.5},
			NorthEast: LatLng{Lat: 33.95, Lng: -117},
		},
		DefaultMarkers: []string{"markers_new.json", "markers.json"},
		DefaultPlan:    "trip-plan.json",
	}
}
