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
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/exposurelab/gridclim"
	"github.com/lnashier/viper"
	"github.com/spf13/cast"
)

// Config is the validated form of the viper configuration shared by
// the download, aggregate, and run commands.
type Config struct {
	Variables       []gridclim.Variable
	Years           []int
	Strategy        gridclim.Strategy
	DownscaleFactor int
	Geography       *gridclim.GeographyDescriptor
	Shapes          gridclim.ShapeKind
	Bilinear        bool
	DataDir         string
	ShapesDir       string
	OutputDir       string
	Expression      string
	Dates           *gridclim.DateFilter
	Workers         int
}

// FromViper extracts and validates the configuration, so that a
// misconfigured run fails before any data is touched. Directory
// values may contain environment variables.
func FromViper(cfg *viper.Viper) (*Config, error) {
	c := &Config{
		Bilinear:   cfg.GetBool("Bilinear"),
		DataDir:    os.ExpandEnv(cfg.GetString("DataDir")),
		ShapesDir:  os.ExpandEnv(cfg.GetString("ShapesDir")),
		OutputDir:  os.ExpandEnv(cfg.GetString("OutputDir")),
		Expression: cfg.GetString("Expression"),
		Workers:    cfg.GetInt("Workers"),
	}

	for _, name := range cast.ToStringSlice(cfg.Get("Variables")) {
		v, err := gridclim.ParseVariable(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		c.Variables = append(c.Variables, v)
	}
	if len(c.Variables) == 0 {
		return nil, fmt.Errorf("gridclim: no climate variables configured")
	}

	var err error
	c.Years, err = parseYears(cfg.GetString("Years"))
	if err != nil {
		return nil, err
	}

	c.Strategy, err = gridclim.ParseStrategy(cfg.GetString("Strategy"))
	if err != nil {
		return nil, err
	}
	c.DownscaleFactor = cfg.GetInt("DownscaleFactor")
	if c.Strategy == gridclim.StrategyDownscale && c.DownscaleFactor < 1 {
		return nil, fmt.Errorf("gridclim: downscale factor must be >= 1; got %d", c.DownscaleFactor)
	}

	c.Geography, err = gridclim.GeographyType(cfg.GetString("GeographyType"))
	if err != nil {
		return nil, err
	}
	c.Shapes, err = gridclim.ParseShapeKind(cfg.GetString("Shapes"))
	if err != nil {
		return nil, err
	}

	c.Dates, err = gridclim.ParseDateFilter(cfg.GetString("Dates"))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// parseYears parses a year spec: a single year, an inclusive a:b
// range, or a comma-separated list of either.
func parseYears(spec string) ([]int, error) {
	if spec == "" {
		return nil, fmt.Errorf("gridclim: Years must be set")
	}
	var years []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if a, b, ok := strings.Cut(part, ":"); ok {
			lo, err := parseYear(a)
			if err != nil {
				return nil, err
			}
			hi, err := parseYear(b)
			if err != nil {
				return nil, err
			}
			if hi < lo {
				return nil, fmt.Errorf("gridclim: year range %s is backwards", part)
			}
			for y := lo; y <= hi; y++ {
				years = append(years, y)
			}
			continue
		}
		y, err := parseYear(part)
		if err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, nil
}

func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || y < 1900 || y > 2200 {
		return 0, fmt.Errorf("gridclim: %q is not a valid year", s)
	}
	return y, nil
}
