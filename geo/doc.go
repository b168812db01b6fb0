// Package geo holds the coordinate helpers the planner needs around the map:
// WGS84 range checks, Web Mercator projection, slippy-map tile addressing and
// GeoJSON-ready points.
//
// Positions are always handled as longitude/latitude in degrees (EPSG:4326).
// Projection to metres (EPSG:3857) goes through github.com/wroge/wgs84 and
// tile indices are derived from the projected metres.
package geo
