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

package gridclimutil

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/exposurelab/gridclim"
	log "github.com/sirupsen/logrus"
)

// RunAggregate processes every configured variable-year pair: it
// loads the geography set for the year, reads the raster cube from
// the data directory, aggregates it, and writes one series artifact
// into the output directory. The geography set is loaded once per
// year and shared across that year's variables.
func RunAggregate(ctx context.Context, cfg *Config) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}
	for _, year := range cfg.Years {
		shapeFile, err := gridclim.FindShapeFile(cfg.ShapesDir, year, cfg.Geography.Name, cfg.Shapes)
		if err != nil {
			return err
		}
		set, err := gridclim.ReadGeographySet(shapeFile, cfg.Geography, cfg.Shapes)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"year":        year,
			"shapes":      shapeFile,
			"geographies": set.Len(),
		}).Info("loaded geographies")

		for _, v := range cfg.Variables {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			cube, err := gridclim.ReadGridCube(DataPath(cfg.DataDir, v, year), v, cfg.Dates)
			if err != nil {
				return err
			}
			rows, err := gridclim.Aggregate(cube, set, gridclim.AggregateConfig{
				Strategy:        cfg.Strategy,
				DownscaleFactor: cfg.DownscaleFactor,
				Bilinear:        cfg.Bilinear,
				Expression:      cfg.Expression,
				Workers:         cfg.Workers,
			})
			if err != nil {
				return err
			}
			out := filepath.Join(cfg.OutputDir, gridclim.ArtifactName(v, year))
			if err := gridclim.WriteSeries(rows, out); err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"variable": v,
				"year":     year,
				"rows":     len(rows),
				"artifact": out,
				"elapsed":  time.Since(start).Round(time.Millisecond),
			}).Info("wrote series artifact")
		}
	}
	return nil
}

// artifactGlob matches every series artifact under the output
// directory.
func artifactGlob(outputDir string) string {
	return filepath.Join(os.ExpandEnv(outputDir), "*.csv.gz")
}
