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

	"github.com/ctessum/sparse"
)

// Downscale supersamples the cube by an integer factor, replicating
// every cell value into a factor×factor block of a finer grid. No
// interpolation is performed, so aggregates over the result equal
// aggregates over the input wherever a geography spans whole original
// cells; for geographies smaller than an original cell the finer grid
// reduces quantization error. Dates, variable identity and the no-data
// sentinel are preserved. factor == 1 returns the receiver unchanged.
//
// The factor applies symmetrically to both axes.
func (c *GridCube) Downscale(factor int) (*GridCube, error) {
	if factor < 1 {
		return nil, fmt.Errorf("gridclim: downscale factor must be a positive integer; got %d", factor)
	}
	if factor == 1 {
		return c, nil
	}
	out := &GridCube{
		Variable:   c.Variable,
		OriginX:    c.OriginX,
		OriginY:    c.OriginY,
		CellWidth:  c.CellWidth / float64(factor),
		CellHeight: c.CellHeight / float64(factor),
		Rows:       c.Rows * factor,
		Cols:       c.Cols * factor,
		Dates:      c.Dates,
		Layers:     make([]*sparse.DenseArray, len(c.Layers)),
		NoData:     c.NoData,
	}
	for i, layer := range c.Layers {
		fine := sparse.ZerosDense(out.Rows, out.Cols)
		for r := 0; r < c.Rows; r++ {
			for col := 0; col < c.Cols; col++ {
				v := layer.Elements[r*c.Cols+col]
				for dr := 0; dr < factor; dr++ {
					rowStart := (r*factor + dr) * out.Cols
					for dc := 0; dc < factor; dc++ {
						fine.Elements[rowStart+col*factor+dc] = v
					}
				}
			}
		}
		out.Layers[i] = fine
	}
	return out, nil
}
