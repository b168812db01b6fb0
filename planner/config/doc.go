// Package config provides park map configuration management.
//
// The config package handles:
//   - Loading park configurations from JSON or YAML files
//   - Validation of tile templates, zoom ranges and bounds
//   - Default park selection
//   - Configuration discovery and listing
//
// Configuration Format:
//
// A park configuration names the tile provider template (with {version},
// {z}, {x} and {y} placeholders), the attribution, the zoom range, the view
// the map opens on, optional panning bounds and the default datasets a fresh
// session loads:
//
//	name: disneyland
//	tile_url_template: https://cdn6.parksmedia.wdprapps.disney.com/media/maps/prod/disneyland/{version}/{z}/{x}/{y}.jpg
//	attribution: "&copy; Disney"
//	min_zoom: 14
//	max_zoom: 20
//	version: "662638499"
//	initial_view:
//	  center: {lat: 33.809092, lng: -117.918958}
//	  zoom: 16
//	max_bounds:
//	  south_west: {lat: 33.75, lng: -118.5}
//	  north_east: {lat: 33.95, lng: -117}
//	default_markers: [markers_new.json, markers.json]
//	default_plan: trip-plan.json
//
// When no "disneyland" file exists the first valid file becomes the default,
// and with an empty directory a built-in Disneyland configuration is used.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	park, err := manager.LoadConfig("disneyland")
//	ranges, err := park.TileRanges([]int{16, 17})
package config
