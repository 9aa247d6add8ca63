/*
Copyright © 2022 the GridClim authors.
This file is part of GridClim.

GridClim is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GridClim is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GridClim.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package gridclim converts gridded daily climate rasters into
// per-geography time series. A GridCube holds one variable's raster
// layers for a year, a GeographySet holds the polygons or points to
// aggregate over, and Aggregate reduces the two to one value per
// geography per day under a selectable rasterization strategy.
package gridclim

import (
	"fmt"
	"math"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// Version gives the version number.
const Version = "0.1.0"

// DefaultNoData is the no-data sentinel used when the input raster
// does not declare one.
const DefaultNoData = -999

// Variable is one gridMET climate band.
type Variable string

// The gridMET bands. The value of each constant is both the band's
// standard name in the NetCDF metadata and its name in download URLs.
const (
	BI     Variable = "bi"     // burning index
	ERC    Variable = "erc"    // energy release component
	ETR    Variable = "etr"    // reference alfalfa evapotranspiration [mm]
	FM100  Variable = "fm100"  // 100-hour dead fuel moisture [%]
	FM1000 Variable = "fm1000" // 1000-hour dead fuel moisture [%]
	PET    Variable = "pet"    // potential evapotranspiration [mm]
	PR     Variable = "pr"     // daily precipitation total [mm]
	RMAX   Variable = "rmax"   // maximum relative humidity [%]
	RMIN   Variable = "rmin"   // minimum relative humidity [%]
	SPH    Variable = "sph"    // specific humidity [kg/kg]
	SRAD   Variable = "srad"   // downward shortwave radiation [W/m2]
	TH     Variable = "th"     // wind direction [degrees from N]
	TMMN   Variable = "tmmn"   // minimum temperature [K]
	TMMX   Variable = "tmmx"   // maximum temperature [K]
	VPD    Variable = "vpd"    // mean vapor pressure deficit [kPa]
	VS     Variable = "vs"     // wind velocity at 10 m [m/s]
)

// Variables lists all recognized climate bands.
var Variables = []Variable{BI, ERC, ETR, FM100, FM1000, PET, PR, RMAX,
	RMIN, SPH, SRAD, TH, TMMN, TMMX, VPD, VS}

// ParseVariable converts a band name to a Variable, returning an
// error for names outside the recognized set.
func ParseVariable(s string) (Variable, error) {
	for _, v := range Variables {
		if s == string(v) {
			return v, nil
		}
	}
	return "", fmt.Errorf("gridclim: unknown climate variable %q", s)
}

// Strategy specifies how grid cells are mapped to a geography's
// weighted contribution.
type Strategy int

const (
	// StrategyDefault assigns the single cell containing the
	// geography's representative point, with weight 1.
	StrategyDefault Strategy = iota

	// StrategyAllTouched averages equally over every cell whose
	// rectangle overlaps the geography.
	StrategyAllTouched

	// StrategyCombined weights every overlapping cell by the fraction
	// of the geography's area inside it.
	StrategyCombined

	// StrategyDownscale supersamples the grid by an integer factor and
	// then applies StrategyAllTouched on the finer grid, approximating
	// StrategyCombined without exact clipping arithmetic.
	StrategyDownscale
)

// DefaultDownscaleFactor is the supersampling factor used by
// StrategyDownscale when none is configured.
const DefaultDownscaleFactor = 5

var strategyNames = map[Strategy]string{
	StrategyDefault:    "default",
	StrategyAllTouched: "all_touched",
	StrategyCombined:   "combined",
	StrategyDownscale:  "downscale",
}

func (s Strategy) String() string {
	if n, ok := strategyNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy converts a strategy name to a Strategy, returning an
// error for unrecognized names so that invalid configurations fail
// before any aggregation work starts.
func ParseStrategy(s string) (Strategy, error) {
	for st, n := range strategyNames {
		if s == n {
			return st, nil
		}
	}
	return 0, fmt.Errorf("gridclim: unknown rasterization strategy %q; valid strategies are default, all_touched, combined and downscale", s)
}

// ShapeKind distinguishes polygon geographies from point geographies.
type ShapeKind int

const (
	PolygonShapes ShapeKind = iota
	PointShapes
)

func (k ShapeKind) String() string {
	if k == PointShapes {
		return "point"
	}
	return "polygon"
}

// ParseShapeKind converts a shape kind name to a ShapeKind.
func ParseShapeKind(s string) (ShapeKind, error) {
	switch s {
	case "polygon":
		return PolygonShapes, nil
	case "point":
		return PointShapes, nil
	}
	return 0, fmt.Errorf("gridclim: unknown shape kind %q; valid kinds are polygon and point", s)
}

// GridCube is an in-memory view of one variable's raster time series:
// one 2-D layer per day plus the georeferencing transform shared by
// all layers. OriginX and OriginY locate the outer corner of cell
// (0, 0); CellHeight is negative for north-up grids, so row indices
// increase southward.
type GridCube struct {
	Variable              Variable
	OriginX, OriginY      float64
	CellWidth, CellHeight float64
	Rows, Cols            int

	// Dates holds one calendar date per layer, strictly increasing.
	Dates []time.Time

	// Layers holds one Rows×Cols array per date.
	Layers []*sparse.DenseArray

	// NoData is the sentinel marking cells with no valid measurement.
	// NaN values are treated as no-data regardless of this setting.
	NoData float64
}

// Bounds returns the grid's extent.
func (c *GridCube) Bounds() *geom.Bounds {
	x2 := c.OriginX + float64(c.Cols)*c.CellWidth
	y2 := c.OriginY + float64(c.Rows)*c.CellHeight
	return &geom.Bounds{
		Min: geom.Point{X: math.Min(c.OriginX, x2), Y: math.Min(c.OriginY, y2)},
		Max: geom.Point{X: math.Max(c.OriginX, x2), Y: math.Max(c.OriginY, y2)},
	}
}

// CellPolygon returns the rectangle covered by cell (row, col).
func (c *GridCube) CellPolygon(row, col int) geom.Polygon {
	x0 := c.OriginX + float64(col)*c.CellWidth
	x1 := x0 + c.CellWidth
	y0 := c.OriginY + float64(row)*c.CellHeight
	y1 := y0 + c.CellHeight
	xMin, xMax := math.Min(x0, x1), math.Max(x0, x1)
	yMin, yMax := math.Min(y0, y1), math.Max(y0, y1)
	return geom.Polygon{{
		{X: xMin, Y: yMin},
		{X: xMax, Y: yMin},
		{X: xMax, Y: yMax},
		{X: xMin, Y: yMax},
		{X: xMin, Y: yMin},
	}}
}

// CellIndex returns the indices of the cell containing p. A point
// lying exactly on a cell boundary is assigned to the neighboring
// cell with the lower index, so results do not depend on which side
// of the boundary accumulates rounding error. ok is false when p is
// outside the grid extent.
func (c *GridCube) CellIndex(p geom.Point) (row, col int, ok bool) {
	col, okx := axisIndex(p.X, c.OriginX, c.CellWidth, c.Cols)
	row, oky := axisIndex(p.Y, c.OriginY, c.CellHeight, c.Rows)
	return row, col, okx && oky
}

// axisIndex maps coordinate v onto a cell index along one grid axis.
// Indices increase away from the origin in the direction of size,
// which may be negative.
func axisIndex(v, origin, size float64, n int) (int, bool) {
	t := (v - origin) / size
	if t < 0 || t > float64(n) {
		return 0, false
	}
	i := int(math.Floor(t))
	// On-boundary values belong to the lower-index cell.
	if t == math.Floor(t) && i > 0 {
		i--
	}
	if i >= n {
		return 0, false
	}
	return i, true
}

// Value returns the cell value for the given layer.
func (c *GridCube) Value(day, row, col int) float64 {
	return c.Layers[day].Elements[row*c.Cols+col]
}

// IsNoData reports whether v is the no-data sentinel.
func (c *GridCube) IsNoData(v float64) bool {
	return v == c.NoData || math.IsNaN(v)
}

// Check verifies the internal consistency of the cube: layer count
// matching date count, identical layer shapes, positive dimensions,
// and strictly increasing dates.
func (c *GridCube) Check() error {
	if c.Rows <= 0 || c.Cols <= 0 {
		return fmt.Errorf("gridclim: grid dimensions %d×%d must be positive", c.Rows, c.Cols)
	}
	if c.CellWidth == 0 || c.CellHeight == 0 {
		return fmt.Errorf("gridclim: grid cell size must be nonzero")
	}
	if len(c.Dates) != len(c.Layers) {
		return fmt.Errorf("gridclim: cube has %d dates but %d layers", len(c.Dates), len(c.Layers))
	}
	for i, l := range c.Layers {
		if len(l.Shape) != 2 || l.Shape[0] != c.Rows || l.Shape[1] != c.Cols {
			return fmt.Errorf("gridclim: layer %d has shape %v; want [%d %d]", i, l.Shape, c.Rows, c.Cols)
		}
	}
	for i := 1; i < len(c.Dates); i++ {
		if !c.Dates[i].After(c.Dates[i-1]) {
			return fmt.Errorf("gridclim: layer dates must be strictly increasing; %v is not after %v",
				c.Dates[i].Format("2006-01-02"), c.Dates[i-1].Format("2006-01-02"))
		}
	}
	return nil
}

// Geography is one aggregation unit: an id plus either a polygon
// boundary or a representative point in the grid's coordinate space.
type Geography struct {
	ID      string
	Kind    ShapeKind
	Polygon geom.Polygon // nil when Kind == PointShapes
	Point   geom.Point   // valid when Kind == PointShapes
}

// representativePoint returns the polygon centroid, or the point
// itself for point geographies.
func (g *Geography) representativePoint() geom.Point {
	if g.Kind == PointShapes {
		return g.Point
	}
	return g.Polygon.Centroid()
}

// GeographySet is an ordered collection of geographies. The order
// determines output row order.
type GeographySet struct {
	Kind        ShapeKind
	Geographies []*Geography
}

// Len returns the number of geographies in the set.
func (s *GeographySet) Len() int { return len(s.Geographies) }

// SeriesRow is one output record: the aggregate value for one
// geography on one day.
type SeriesRow struct {
	GeographyID string
	Date        time.Time
	Value       float64
}
