package geo

import (
	"errors"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Web Mercator extent, in metres, of the square world the tile pyramid covers
const (
	earthRadius  = 6378137.0
	originShift  = math.Pi * earthRadius
	MaxLatitude  = 85.05112878
	MaxTileZoom  = 22
	tileCountCap = 1 << 20
)

var (
	// ErrInvalidCoordinates is returned for non-finite or out-of-range WGS84 coordinates
	ErrInvalidCoordinates = errors.New("invalid coordinates provided")
	// ErrInvalidZoom is returned for a zoom outside 0..MaxTileZoom
	ErrInvalidZoom = errors.New("invalid zoom level")
	// ErrTooManyTiles is returned when a tile range would exceed the enumeration cap
	ErrTooManyTiles = errors.New("tile range too large")
)

// Finite reports whether both values are neither NaN nor infinite
func Finite(lat, lng float64) bool {
	return !math.IsNaN(lat) && !math.IsInf(lat, 0) && !math.IsNaN(lng) && !math.IsInf(lng, 0)
}

// InRange reports whether lat/lng are finite and inside the WGS84 domain
func InRange(lat, lng float64) bool {
	return Finite(lat, lng) && lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Mercator projects a WGS84 longitude/latitude to EPSG:3857 metres.
// Latitudes beyond the Mercator limit are clamped.
func Mercator(lng, lat float64) (x, y float64, err error) {
	if !InRange(lat, lng) {
		return 0, 0, ErrInvalidCoordinates
	}
	lat = math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))

	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ = f(lng, lat, 0)
	return x, y, nil
}

// Tile addresses one slippy-map tile
type Tile struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// TileAt returns the tile containing lng/lat at zoom
func TileAt(lng, lat float64, zoom int) (Tile, error) {
	if zoom < 0 || zoom > MaxTileZoom {
		return Tile{}, fmt.Errorf("%w: %d", ErrInvalidZoom, zoom)
	}
	x, y, err := Mercator(lng, lat)
	if err != nil {
		return Tile{}, err
	}

	n := float64(int(1) << zoom)
	tx := int(math.Floor((x + originShift) / (2 * originShift) * n))
	ty := int(math.Floor((originShift - y) / (2 * originShift) * n))

	limit := int(n) - 1
	return Tile{Z: zoom, X: clamp(tx, 0, limit), Y: clamp(ty, 0, limit)}, nil
}

// TileRange is the inclusive block of tiles covering a bounding box at one zoom
type TileRange struct {
	Zoom int `json:"zoom"`
	MinX int `json:"min_x"`
	MaxX int `json:"max_x"`
	MinY int `json:"min_y"`
	MaxY int `json:"max_y"`
}

// RangeFor returns the tiles covering the box spanned by south-west and north-east corners
func RangeFor(swLat, swLng, neLat, neLng float64, zoom int) (TileRange, error) {
	nw, err := TileAt(swLng, neLat, zoom)
	if err != nil {
		return TileRange{}, err
	}
	se, err := TileAt(neLng, swLat, zoom)
	if err != nil {
		return TileRange{}, err
	}
	return TileRange{
		Zoom: zoom,
		MinX: min(nw.X, se.X),
		MaxX: max(nw.X, se.X),
		MinY: min(nw.Y, se.Y),
		MaxY: max(nw.Y, se.Y),
	}, nil
}

// Count returns the number of tiles in the range
func (r TileRange) Count() int {
	return (r.MaxX - r.MinX + 1) * (r.MaxY - r.MinY + 1)
}

// Tiles lists every tile in the range, row by row
func (r TileRange) Tiles() ([]Tile, error) {
	if r.Count() > tileCountCap {
		return nil, fmt.Errorf("%w: %d tiles at zoom %d", ErrTooManyTiles, r.Count(), r.Zoom)
	}
	tiles := make([]Tile, 0, r.Count())
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			tiles = append(tiles, Tile{Z: r.Zoom, X: x, Y: y})
		}
	}
	return tiles, nil
}

// Point builds a 2D WGS84 point, X = longitude, Y = latitude
func Point(lng, lat float64) (geom.Point, error) {
	if !InRange(lat, lng) {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: lng, Y: lat}})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
