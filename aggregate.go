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
	"runtime"
	"sync"

	"github.com/Knetic/govaluate"
	log "github.com/sirupsen/logrus"
)

// AggregateConfig controls one aggregation run.
type AggregateConfig struct {
	Strategy Strategy

	// DownscaleFactor is the supersampling factor applied before
	// weighting when Strategy is StrategyDownscale. Zero selects
	// DefaultDownscaleFactor.
	DownscaleFactor int

	// Bilinear selects bilinear interpolation over the four
	// surrounding cell centers for point geographies, instead of
	// nearest-cell sampling.
	Bilinear bool

	// Expression is an optional formula applied to every aggregate
	// before it is emitted, with the aggregate bound to the variable
	// "value"; for example "value - 273.15" converts Kelvin bands to
	// Celsius. Empty means the aggregate is emitted unchanged.
	Expression string

	// Workers is the number of parallel workers; zero means
	// runtime.GOMAXPROCS(0).
	Workers int
}

func (cfg *AggregateConfig) expression() (*govaluate.EvaluableExpression, error) {
	if cfg.Expression == "" {
		return nil, nil
	}
	expr, err := govaluate.NewEvaluableExpression(cfg.Expression)
	if err != nil {
		return nil, fmt.Errorf("gridclim: parsing value expression %q: %v", cfg.Expression, err)
	}
	return expr, nil
}

// Aggregate reduces the cube to one value per geography per day. For
// each geography a weight map is computed once and reused across all
// layers, so the run costs O(geographies × cells-per-geography ×
// days) rather than recomputing geometry per day. Cells holding the
// no-data sentinel are skipped and the remaining weights renormalized;
// a (geography, day) pair whose contributing cells are all no-data
// produces no row. A geography entirely outside the grid extent
// produces no rows at all but does not fail the run.
//
// Rows are returned in a stable order, geographies in set order and
// days chronologically within each geography, so repeated runs on the
// same inputs are byte-identical when serialized.
func Aggregate(cube *GridCube, set *GeographySet, cfg AggregateConfig) ([]SeriesRow, error) {
	expr, err := cfg.expression()
	if err != nil {
		return nil, err
	}

	weighting := cfg.Strategy
	if cfg.Strategy == StrategyDownscale {
		factor := cfg.DownscaleFactor
		if factor == 0 {
			factor = DefaultDownscaleFactor
		}
		cube, err = cube.Downscale(factor)
		if err != nil {
			return nil, err
		}
		weighting = StrategyAllTouched
	}

	nprocs := cfg.Workers
	if nprocs <= 0 {
		nprocs = runtime.GOMAXPROCS(0)
	}

	log.WithFields(log.Fields{
		"variable":    cube.Variable,
		"strategy":    cfg.Strategy,
		"geographies": set.Len(),
		"days":        len(cube.Dates),
		"workers":     nprocs,
	}).Info("aggregating")

	// Each worker strides over the geography list and fills private
	// result slots; the cube is immutable for the duration of the run
	// so no locking is needed.
	results := make([][]SeriesRow, set.Len())
	errs := make([]error, nprocs)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			for i := pp; i < set.Len(); i += nprocs {
				rows, err := aggregateOne(cube, set.Geographies[i], weighting, cfg.Bilinear, expr)
				if err != nil {
					errs[pp] = err
					return
				}
				results[i] = rows
			}
		}(pp)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var n int
	for _, rows := range results {
		n += len(rows)
	}
	out := make([]SeriesRow, 0, n)
	for _, rows := range results {
		out = append(out, rows...)
	}
	return out, nil
}

// aggregateOne computes the day series for a single geography.
func aggregateOne(cube *GridCube, g *Geography, weighting Strategy, bilinear bool, expr *govaluate.EvaluableExpression) ([]SeriesRow, error) {
	var wm CellWeightMap
	if g.Kind == PointShapes && bilinear {
		wm = NewPointSample(cube, g.Point).Weights()
	} else {
		var err error
		wm, err = CellWeights(cube, g, weighting)
		if err != nil {
			return nil, err
		}
	}
	if len(wm) == 0 {
		log.WithField("geography", g.ID).Debug("outside grid extent; no data")
		return nil, nil
	}

	rows := make([]SeriesRow, 0, len(cube.Dates))
	for day, date := range cube.Dates {
		var sum, wsum float64
		for _, cw := range wm {
			v := cube.Value(day, cw.Row, cw.Col)
			if cube.IsNoData(v) {
				continue
			}
			sum += cw.Weight * v
			wsum += cw.Weight
		}
		if wsum == 0 {
			continue // no valid coverage on this day
		}
		val := sum / wsum
		if expr != nil {
			res, err := expr.Evaluate(map[string]interface{}{"value": val})
			if err != nil {
				return nil, fmt.Errorf("gridclim: evaluating value expression for geography %s: %v", g.ID, err)
			}
			f, ok := res.(float64)
			if !ok {
				return nil, fmt.Errorf("gridclim: value expression returned %T; want float64", res)
			}
			val = f
		}
		rows = append(rows, SeriesRow{GeographyID: g.ID, Date: date, Value: val})
	}
	return rows, nil
}
