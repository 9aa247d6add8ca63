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
	"os"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// dayEpoch is the reference date for the "day" coordinate in gridMET
// files: day values count days since 1900-01-01.
var dayEpoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// ReadGridCube loads a gridMET-style NetCDF raster file into a
// GridCube. The data variable is located by its standard_name
// attribute matching the requested band; layer dates come from the
// "day" coordinate and the transform from the lat/lon coordinate
// vectors, which hold cell centers. The whole file is materialized
// before aggregation starts. filter, if non-nil, drops layers whose
// date it rejects.
func ReadGridCube(filename string, v Variable, filter *DateFilter) (*GridCube, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("gridclim: opening raster file: %v", err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("gridclim: reading raster file %s: %v", filename, err)
	}

	dataVar, err := findVariable(ff, string(v))
	if err != nil {
		return nil, err
	}
	dims := ff.Header.Lengths(dataVar)
	if len(dims) != 3 {
		return nil, fmt.Errorf("gridclim: variable %s in %s has %d dimensions; want 3 (day, lat, lon)", dataVar, filename, len(dims))
	}
	nDays, rows, cols := dims[0], dims[1], dims[2]

	days, err := readVector(ff, "day")
	if err != nil {
		return nil, fmt.Errorf("gridclim: reading day coordinate of %s: %v", filename, err)
	}
	if len(days) != nDays {
		return nil, fmt.Errorf("gridclim: %s has %d day coordinates but %d layers", filename, len(days), nDays)
	}
	lat, err := readVector(ff, "lat")
	if err != nil {
		return nil, fmt.Errorf("gridclim: reading lat coordinate of %s: %v", filename, err)
	}
	lon, err := readVector(ff, "lon")
	if err != nil {
		return nil, fmt.Errorf("gridclim: reading lon coordinate of %s: %v", filename, err)
	}
	if len(lat) < 2 || len(lon) < 2 || len(lat) != rows || len(lon) != cols {
		return nil, fmt.Errorf("gridclim: %s coordinate lengths (%d, %d) do not match grid (%d, %d)", filename, len(lat), len(lon), rows, cols)
	}

	cellWidth := lon[1] - lon[0]
	cellHeight := lat[1] - lat[0] // negative when latitudes run north to south
	cube := &GridCube{
		Variable:   v,
		OriginX:    lon[0] - cellWidth/2,
		OriginY:    lat[0] - cellHeight/2,
		CellWidth:  cellWidth,
		CellHeight: cellHeight,
		Rows:       rows,
		Cols:       cols,
		NoData:     noDataValue(ff, dataVar),
	}

	scale, hasScale := attrFloat(ff, dataVar, "scale_factor")
	offset, hasOffset := attrFloat(ff, dataVar, "add_offset")
	if !hasScale {
		scale = 1
	}
	if !hasOffset {
		offset = 0
	}

	for i := 0; i < nDays; i++ {
		date := dayEpoch.AddDate(0, 0, int(days[i]))
		if !filter.Accept(date) {
			continue
		}
		layer, err := readLayer(ff, dataVar, i, rows, cols)
		if err != nil {
			return nil, fmt.Errorf("gridclim: reading layer %d of %s: %v", i, filename, err)
		}
		if hasScale || hasOffset {
			unpackLayer(layer, scale, offset, cube.NoData)
		}
		cube.Dates = append(cube.Dates, date)
		cube.Layers = append(cube.Layers, layer)
	}
	if err := cube.Check(); err != nil {
		return nil, err
	}
	return cube, nil
}

// findVariable locates the NetCDF variable whose standard_name
// attribute equals standardName, falling back to a variable of the
// same name.
func findVariable(ff *cdf.File, standardName string) (string, error) {
	for _, name := range ff.Header.Variables() {
		if sn, ok := ff.Header.GetAttribute(name, "standard_name").(string); ok && sn == standardName {
			return name, nil
		}
	}
	for _, name := range ff.Header.Variables() {
		if name == standardName {
			return name, nil
		}
	}
	return "", fmt.Errorf("gridclim: no variable with standard name %q in dataset", standardName)
}

// noDataValue returns the declared fill value for the variable, or
// DefaultNoData if none is declared.
func noDataValue(ff *cdf.File, varName string) float64 {
	if v, ok := attrFloat(ff, varName, "_FillValue"); ok {
		return v
	}
	if v, ok := attrFloat(ff, varName, "missing_value"); ok {
		return v
	}
	return DefaultNoData
}

// attrFloat reads a numeric attribute, tolerating the scalar and
// slice encodings NetCDF writers produce.
func attrFloat(ff *cdf.File, varName, attr string) (float64, bool) {
	switch a := ff.Header.GetAttribute(varName, attr).(type) {
	case []float64:
		if len(a) > 0 {
			return a[0], true
		}
	case []float32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int16:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case float64:
		return a, true
	case float32:
		return float64(a), true
	case int32:
		return float64(a), true
	}
	return 0, false
}

// readVector reads a whole 1-D coordinate variable.
func readVector(ff *cdf.File, varName string) ([]float64, error) {
	if len(ff.Header.Lengths(varName)) == 0 {
		return nil, fmt.Errorf("variable %q not in file", varName)
	}
	r := ff.Reader(varName, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, err
	}
	return toFloats(buf)
}

// readLayer reads one day's 2-D slice of the data variable.
func readLayer(ff *cdf.File, varName string, day, rows, cols int) (*sparse.DenseArray, error) {
	start := []int{day, 0, 0}
	end := []int{day + 1, rows, cols}
	r := ff.Reader(varName, start, end)
	buf := r.Zero(rows * cols)
	if _, err := r.Read(buf); err != nil {
		return nil, err
	}
	vals, err := toFloats(buf)
	if err != nil {
		return nil, err
	}
	layer := sparse.ZerosDense(rows, cols)
	copy(layer.Elements, vals)
	return layer, nil
}

// unpackLayer applies the NetCDF packing transform in place, leaving
// no-data cells untouched so the sentinel survives unpacking.
func unpackLayer(layer *sparse.DenseArray, scale, offset, noData float64) {
	for i, v := range layer.Elements {
		if v == noData {
			continue
		}
		layer.Elements[i] = v*scale + offset
	}
}

// toFloats converts a NetCDF read buffer to float64 values.
func toFloats(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported netcdf buffer type %T", buf)
}
