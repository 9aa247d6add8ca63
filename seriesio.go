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
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// SeriesColumns is the artifact column order. The downstream bulk
// loader creates its destination table with these columns in this
// order, so it must not change between producer and consumer.
var SeriesColumns = []string{"geography_id", "date", "value"}

// ArtifactName returns the output file name for one (variable, year)
// run. The bulk loader globs on this pattern.
func ArtifactName(v Variable, year int) string {
	return fmt.Sprintf("%s_%d.csv.gz", v, year)
}

// WriteSeries serializes rows to a gzip-compressed CSV artifact at
// path, preserving row order. The file is written to a temporary
// sibling and renamed into place only after a successful flush, so an
// aborted or failed run leaves no partial artifact behind: downstream
// ingestion may take the artifact's existence to mean it is complete.
func WriteSeries(rows []SeriesRow, path string) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("gridclim: creating output file: %v", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw := gzip.NewWriter(tmp)
	cw := csv.NewWriter(zw)
	if err = cw.Write(SeriesColumns); err != nil {
		return fmt.Errorf("gridclim: writing output header: %v", err)
	}
	rec := make([]string, 3)
	for _, row := range rows {
		rec[0] = row.GeographyID
		rec[1] = row.Date.Format("2006-01-02")
		rec[2] = strconv.FormatFloat(row.Value, 'g', -1, 64)
		if err = cw.Write(rec); err != nil {
			return fmt.Errorf("gridclim: writing output row: %v", err)
		}
	}
	cw.Flush()
	if err = cw.Error(); err != nil {
		return fmt.Errorf("gridclim: flushing output: %v", err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("gridclim: closing compressed stream: %v", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("gridclim: closing output file: %v", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("gridclim: committing output file: %v", err)
	}
	return nil
}
