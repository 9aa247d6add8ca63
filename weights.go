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

package gridclim

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
)

// CellWeight is one entry of a geography's weight map: the fraction
// of the geography's aggregate contributed by cell (Row, Col).
type CellWeight struct {
	Row, Col int
	Weight   float64
}

// CellWeightMap describes how one geography maps onto grid cells. It
// is computed once per geography and reused across every day layer of
// a run. Entries are in row-major order, all weights are positive,
// and for the averaging strategies the weights sum to 1. An empty map
// means the geography lies entirely outside the grid extent.
type CellWeightMap []CellWeight

// CellWeights computes the weight map for one geography against the
// cube's grid geometry. strategy must be StrategyDefault,
// StrategyAllTouched or StrategyCombined; StrategyDownscale is a grid
// transform handled by the Aggregator, not a weighting rule. Point
// geographies degenerate to the single containing cell under every
// strategy. The computation depends only on the geometry and the grid,
// so repeated calls yield identical maps.
func CellWeights(c *GridCube, g *Geography, strategy Strategy) (CellWeightMap, error) {
	if strategy == StrategyDownscale {
		return nil, fmt.Errorf("gridclim: downscale must be resolved to a concrete weighting strategy before computing weights")
	}
	if g.Kind == PointShapes || strategy == StrategyDefault {
		return centroidWeight(c, g), nil
	}
	if len(g.Polygon) == 0 {
		return nil, fmt.Errorf("gridclim: geography %s has an empty polygon", g.ID)
	}
	switch strategy {
	case StrategyAllTouched:
		return overlapWeights(c, g.Polygon, false), nil
	case StrategyCombined:
		return overlapWeights(c, g.Polygon, true), nil
	}
	return nil, fmt.Errorf("gridclim: invalid weighting strategy %v", strategy)
}

// centroidWeight returns the single-cell map for the geography's
// representative point, or an empty map if the point is off-grid.
func centroidWeight(c *GridCube, g *Geography) CellWeightMap {
	row, col, ok := c.CellIndex(g.representativePoint())
	if !ok {
		return nil
	}
	return CellWeightMap{{Row: row, Col: col, Weight: 1}}
}

// overlapWeights scans the cells under the polygon's bounding box in
// row-major order and weights each cell that overlaps the polygon
// interior. With areal == false every touched cell gets an equal
// share; with areal == true each cell is weighted by the overlap area.
// Either way the weights are normalized to sum to 1 over the cells
// inside the grid extent.
func overlapWeights(c *GridCube, poly geom.Polygon, areal bool) CellWeightMap {
	r0, r1, c0, c1, ok := c.coveredCells(poly.Bounds())
	if !ok {
		return nil
	}
	var wm CellWeightMap
	areas := make([]float64, 0, (r1-r0+1)*(c1-c0+1))
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			isect := c.CellPolygon(row, col).Intersection(poly)
			if isect == nil {
				continue
			}
			a := isect.Area()
			if a <= 0 {
				continue
			}
			wm = append(wm, CellWeight{Row: row, Col: col})
			areas = append(areas, a)
		}
	}
	if len(wm) == 0 {
		return nil
	}
	if areal {
		total := floats.Sum(areas)
		for i := range wm {
			wm[i].Weight = areas[i] / total
		}
	} else {
		w := 1 / float64(len(wm))
		for i := range wm {
			wm[i].Weight = w
		}
	}
	return wm
}

// coveredCells returns the index range of cells whose rectangles may
// overlap bounds, clamped to the grid. ok is false when the bounds lie
// entirely outside the grid extent.
func (c *GridCube) coveredCells(b *geom.Bounds) (r0, r1, c0, c1 int, ok bool) {
	if !c.Bounds().Overlaps(b) {
		return 0, 0, 0, 0, false
	}
	c0, c1 = axisSpan(b.Min.X, b.Max.X, c.OriginX, c.CellWidth, c.Cols)
	r0, r1 = axisSpan(b.Min.Y, b.Max.Y, c.OriginY, c.CellHeight, c.Rows)
	return r0, r1, c0, c1, true
}

// axisSpan maps a coordinate interval to the covered index range on
// one axis, clamped to [0, n).
func axisSpan(vMin, vMax, origin, size float64, n int) (lo, hi int) {
	t0 := (vMin - origin) / size
	t1 := (vMax - origin) / size
	if t0 > t1 {
		t0, t1 = t1, t0
	}
	lo = int(math.Floor(t0))
	hi = int(math.Floor(t1))
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi
}

// PointSample holds the bilinear interpolation state for one point
// against a raster grid: the up-to-four surrounding cell centers and
// their interpolation weights. Masked corners degrade the sample the
// same way the source data pipeline does: a partially masked point
// falls back to its nearest valid corner, and a fully masked point
// yields no data at all.
type PointSample struct {
	weights CellWeightMap
}

// NewPointSample locates p among the surrounding cell centers of the
// cube's grid and computes bilinear weights from the first layer's
// mask. The mask is assumed stable across layers, which holds for
// climate rasters where no-data marks cells outside the land surface.
func NewPointSample(c *GridCube, p geom.Point) *PointSample {
	// Fractional position of p among cell centers.
	fx := (p.X-c.OriginX)/c.CellWidth - 0.5
	fy := (p.Y-c.OriginY)/c.CellHeight - 0.5
	col0 := int(math.Floor(fx))
	row0 := int(math.Floor(fy))
	x := fx - float64(col0)
	y := fy - float64(row0)

	corners := [4]CellWeight{
		{Row: row0, Col: col0, Weight: (1 - x) * (1 - y)},
		{Row: row0, Col: col0 + 1, Weight: x * (1 - y)},
		{Row: row0 + 1, Col: col0, Weight: (1 - x) * y},
		{Row: row0 + 1, Col: col0 + 1, Weight: x * y},
	}

	// Corners with zero weight contribute nothing, so a point lying
	// exactly on a cell-center gridline interpolates over fewer than
	// four cells without degrading the sample.
	var valid CellWeightMap
	degraded := false
	for _, cw := range corners {
		if cw.Weight <= 0 {
			continue
		}
		if cw.Row < 0 || cw.Row >= c.Rows || cw.Col < 0 || cw.Col >= c.Cols {
			degraded = true
			continue
		}
		if len(c.Layers) > 0 && c.IsNoData(c.Value(0, cw.Row, cw.Col)) {
			degraded = true
			continue
		}
		valid = append(valid, cw)
	}
	if len(valid) == 0 {
		return &PointSample{}
	}
	if !degraded {
		return &PointSample{weights: valid}
	}
	// Partially masked: use the corner nearest to the point, which is
	// the one with the largest bilinear weight.
	best := valid[0]
	for _, cw := range valid[1:] {
		if cw.Weight > best.Weight {
			best = cw
		}
	}
	return &PointSample{weights: CellWeightMap{{Row: best.Row, Col: best.Col, Weight: 1}}}
}

// Masked reports whether all surrounding cells are no-data, in which
// case the point produces no output rows.
func (s *PointSample) Masked() bool { return len(s.weights) == 0 }

// Weights returns the sample's weight map.
func (s *PointSample) Weights() CellWeightMap { return s.weights }
