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
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
)

// writePolygonFixture writes a shapefile of unit squares, one per id,
// offset along the x axis, with the ids stored in the given attribute
// field.
func writePolygonFixture(t *testing.T, path, field string, ids []string) {
	t.Helper()
	e, err := shp.NewEncoderFromFields(path, goshp.POLYGON, goshp.StringField(field, 10))
	if err != nil {
		t.Fatal(err)
	}
	for i, id := range ids {
		x := float64(i)
		if err := e.EncodeFields(rect(x, 0, x+1, 1), id); err != nil {
			t.Fatal(err)
		}
	}
	e.Close()
}

func writePointFixture(t *testing.T, path, field string, ids []string) {
	t.Helper()
	e, err := shp.NewEncoderFromFields(path, goshp.POINT, goshp.StringField(field, 10))
	if err != nil {
		t.Fatal(err)
	}
	for i, id := range ids {
		if err := e.EncodeFields(geom.Point{X: float64(i), Y: 0.5}, id); err != nil {
			t.Fatal(err)
		}
	}
	e.Close()
}

func TestGeographyType(t *testing.T) {
	for _, name := range []string{"zip", "county"} {
		d, err := GeographyType(name)
		if err != nil {
			t.Fatal(err)
		}
		if d.Name != name {
			t.Errorf("got descriptor %q; want %q", d.Name, name)
		}
	}
	if _, err := GeographyType("tract"); err == nil {
		t.Error("expected error for unknown geography type")
	}
}

func TestReadGeographySetPolygons(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zips.shp")
	ids := []string{"02138", "02139", "02140"}
	writePolygonFixture(t, path, "ZIP", ids)

	desc, err := GeographyType("zip")
	if err != nil {
		t.Fatal(err)
	}
	set, err := ReadGeographySet(path, desc, PolygonShapes)
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != len(ids) {
		t.Fatalf("got %d geographies; want %d", set.Len(), len(ids))
	}
	for i, g := range set.Geographies {
		if g.ID != ids[i] {
			t.Errorf("record %d: id %q; want %q", i, g.ID, ids[i])
		}
		if len(g.Polygon) == 0 {
			t.Errorf("record %d: missing polygon geometry", i)
		}
	}
}

// Shapefile vintages name the id attribute inconsistently; the
// alternates in the descriptor must be found when the primary field is
// absent.
func TestReadGeographySetAltIDField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zcta.shp")
	writePolygonFixture(t, path, "ZCTA5CE10", []string{"02138"})

	desc, err := GeographyType("zip")
	if err != nil {
		t.Fatal(err)
	}
	set, err := ReadGeographySet(path, desc, PolygonShapes)
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != 1 || set.Geographies[0].ID != "02138" {
		t.Errorf("got %+v; want one record with id 02138", set.Geographies)
	}
}

func TestReadGeographySetPoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "centroids.shp")
	ids := []string{"25017", "25025"}
	writePointFixture(t, path, "GEOID", ids)

	desc, err := GeographyType("county")
	if err != nil {
		t.Fatal(err)
	}
	set, err := ReadGeographySet(path, desc, PointShapes)
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != 2 {
		t.Fatalf("got %d geographies; want 2", set.Len())
	}
	for i, g := range set.Geographies {
		if g.ID != ids[i] {
			t.Errorf("record %d: id %q; want %q", i, g.ID, ids[i])
		}
		if different(g.Point.X, float64(i), testTolerance) || different(g.Point.Y, 0.5, testTolerance) {
			t.Errorf("record %d: point (%g, %g); want (%d, 0.5)", i, g.Point.X, g.Point.Y, i)
		}
	}
}

func TestReadGeographySetKindMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zips.shp")
	writePolygonFixture(t, path, "ZIP", []string{"02138"})
	desc, err := GeographyType("zip")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ReadGeographySet(path, desc, PointShapes); err == nil {
		t.Error("expected error reading polygon shapes as points")
	}
}

func TestReadGeographySetMissingIDField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anon.shp")
	writePolygonFixture(t, path, "NAME", []string{"x"})
	desc, err := GeographyType("zip")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ReadGeographySet(path, desc, PolygonShapes); err == nil {
		t.Error("expected error for shapefile without any id attribute")
	}
}

func TestFindShapeFile(t *testing.T) {
	dir := t.TempDir()
	mk := func(year int) string {
		d := filepath.Join(dir, strconv.Itoa(year), "zip", "polygon")
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
		p := filepath.Join(d, "zips.shp")
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	p2010 := mk(2010)
	p2015 := mk(2015)

	// Exact year.
	got, err := FindShapeFile(dir, 2015, "zip", PolygonShapes)
	if err != nil {
		t.Fatal(err)
	}
	if got != p2015 {
		t.Errorf("got %q; want %q", got, p2015)
	}

	// Nearer years win, searching backward before forward.
	got, err = FindShapeFile(dir, 2012, "zip", PolygonShapes)
	if err != nil {
		t.Fatal(err)
	}
	if got != p2010 {
		t.Errorf("year 2012: got %q; want backward fallback %q", got, p2010)
	}

	// Years before all fixtures fall forward.
	got, err = FindShapeFile(dir, 2005, "zip", PolygonShapes)
	if err != nil {
		t.Fatal(err)
	}
	if got != p2010 {
		t.Errorf("year 2005: got %q; want forward fallback %q", got, p2010)
	}

	if _, err := FindShapeFile(dir, 2012, "county", PolygonShapes); err == nil {
		t.Error("expected error for geography type with no shape files")
	}
}
