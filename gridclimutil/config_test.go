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
	"reflect"
	"testing"

	"github.com/exposurelab/gridclim"
	"github.com/lnashier/viper"
)

func TestParseYears(t *testing.T) {
	for _, test := range []struct {
		spec string
		want []int
	}{
		{"2009", []int{2009}},
		{"2009:2012", []int{2009, 2010, 2011, 2012}},
		{"2009,2011", []int{2009, 2011}},
		{"1999,2005:2007", []int{1999, 2005, 2006, 2007}},
	} {
		got, err := parseYears(test.spec)
		if err != nil {
			t.Fatalf("%q: %v", test.spec, err)
		}
		if !reflect.DeepEqual(got, test.want) {
			t.Errorf("%q: got %v; want %v", test.spec, got, test.want)
		}
	}
}

func TestParseYearsInvalid(t *testing.T) {
	for _, spec := range []string{"", "abc", "2012:2009", "1492", "2009:"} {
		if _, err := parseYears(spec); err == nil {
			t.Errorf("%q: expected error", spec)
		}
	}
}

func testViper(t *testing.T) *viper.Viper {
	t.Helper()
	cfg := viper.New()
	cfg.Set("Variables", []string{"tmmx", "pr"})
	cfg.Set("Years", "2009")
	cfg.Set("Strategy", "combined")
	cfg.Set("DownscaleFactor", 5)
	cfg.Set("GeographyType", "zip")
	cfg.Set("Shapes", "polygon")
	cfg.Set("Bilinear", true)
	cfg.Set("DataDir", "/tmp/data")
	cfg.Set("ShapesDir", "/tmp/shapes")
	cfg.Set("OutputDir", "/tmp/out")
	return cfg
}

func TestFromViper(t *testing.T) {
	c, err := FromViper(testViper(t))
	if err != nil {
		t.Fatal(err)
	}
	if want := []gridclim.Variable{gridclim.TMMX, gridclim.PR}; !reflect.DeepEqual(c.Variables, want) {
		t.Errorf("variables %v; want %v", c.Variables, want)
	}
	if !reflect.DeepEqual(c.Years, []int{2009}) {
		t.Errorf("years %v; want [2009]", c.Years)
	}
	if c.Strategy != gridclim.StrategyCombined {
		t.Errorf("strategy %v; want combined", c.Strategy)
	}
	if c.Geography.Name != "zip" {
		t.Errorf("geography %q; want zip", c.Geography.Name)
	}
	if c.Shapes != gridclim.PolygonShapes {
		t.Errorf("shapes %v; want polygon", c.Shapes)
	}
	if !c.Bilinear {
		t.Error("bilinear not carried through")
	}
}

func TestFromViperInvalid(t *testing.T) {
	for _, test := range []struct{ key, val string }{
		{"Variables", "temperature"},
		{"Years", "199x"},
		{"Strategy", "nearest"},
		{"GeographyType", "tract"},
		{"Shapes", "line"},
		{"Dates", "nonsense"},
	} {
		cfg := testViper(t)
		cfg.Set(test.key, test.val)
		if _, err := FromViper(cfg); err == nil {
			t.Errorf("%s=%q: expected error", test.key, test.val)
		}
	}
}

func TestFromViperDownscaleFactor(t *testing.T) {
	cfg := testViper(t)
	cfg.Set("Strategy", "downscale")
	cfg.Set("DownscaleFactor", 0)
	if _, err := FromViper(cfg); err == nil {
		t.Error("expected error for downscale with factor 0")
	}
}
