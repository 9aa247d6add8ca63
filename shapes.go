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
	"path/filepath"
	"strconv"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

// GeographyDescriptor describes one geography type as data rather
// than code: the attribute field holding the record id and the name
// used in shape directory layouts. Additional types can be registered
// by constructing a descriptor directly.
type GeographyDescriptor struct {
	// Name is the geography type name used in directory layouts and
	// configuration, e.g. "zip".
	Name string

	// IDField is the shapefile attribute holding the geography id.
	IDField string

	// AltIDFields are tried in order when IDField is absent; shapefile
	// vintages are not consistent about attribute naming.
	AltIDFields []string
}

var geographyTypes = []*GeographyDescriptor{
	{Name: "zip", IDField: "ZIP", AltIDFields: []string{"ZCTA5CE10", "ZCTA5CE"}},
	{Name: "county", IDField: "COUNTY", AltIDFields: []string{"GEOID", "FIPS"}},
}

// GeographyType returns the descriptor for a named geography type.
// Unknown names are a configuration error and fail before any
// aggregation work starts.
func GeographyType(name string) (*GeographyDescriptor, error) {
	for _, d := range geographyTypes {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("gridclim: unknown geography type %q; valid types are zip and county", name)
}

// shapeSearchMinYear and shapeSearchMaxYear bound the nearest-year
// shapefile search. Census shape vintages before 1980 do not exist in
// the archives this layout mirrors.
const (
	shapeSearchMinYear = 1980
	shapeSearchMaxYear = 2030
)

// FindShapeFile locates the shapefile for a geography type and shape
// kind under a directory laid out as
// ${shapesDir}/${year}/${geographyType}/${point|polygon}/. When the
// requested year is missing it falls back to the nearest available
// year, searching backward first and then forward, because boundary
// files are published less often than climate data.
func FindShapeFile(shapesDir string, year int, geographyType string, kind ShapeKind) (string, error) {
	for _, direction := range []int{-1, 1} {
		for y := year; y >= shapeSearchMinYear && y <= shapeSearchMaxYear; y += direction {
			dir := filepath.Join(shapesDir, strconv.Itoa(y), geographyType, kind.String())
			matches, err := filepath.Glob(filepath.Join(dir, "*.shp"))
			if err != nil {
				return "", fmt.Errorf("gridclim: searching for shape files: %v", err)
			}
			if len(matches) > 0 {
				return matches[0], nil
			}
		}
	}
	return "", fmt.Errorf("gridclim: no %s %s shape file found under %s for year %d or any nearby year",
		geographyType, kind, shapesDir, year)
}

// ReadGeographySet loads all records of a shapefile into a
// GeographySet, preserving file order. Each record must carry the
// descriptor's id attribute (or one of its alternates) and a geometry
// matching kind; multi-polygons are flattened into a single polygon
// per record. Geometries are assumed to already be in the grid's
// coordinate reference system.
func ReadGeographySet(filename string, desc *GeographyDescriptor, kind ShapeKind) (*GeographySet, error) {
	idField, err := resolveIDField(filename, desc)
	if err != nil {
		return nil, err
	}
	dec, err := shp.NewDecoder(filename)
	if err != nil {
		return nil, fmt.Errorf("gridclim: opening shape file %s: %v", filename, err)
	}
	defer dec.Close()

	set := &GeographySet{Kind: kind}
	for {
		g, attrs, more := dec.DecodeRowFields(idField)
		if !more {
			break
		}
		id := attrs[idField]
		if id == "" {
			return nil, fmt.Errorf("gridclim: shape file %s: record %d has an empty %s attribute", filename, set.Len(), idField)
		}
		geo := &Geography{ID: id, Kind: kind}
		switch gg := g.(type) {
		case geom.Polygon:
			geo.Polygon = gg
		case geom.MultiPolygon:
			for _, p := range gg {
				geo.Polygon = append(geo.Polygon, p...)
			}
		case geom.Point:
			geo.Point = gg
		default:
			return nil, fmt.Errorf("gridclim: shape file %s: record %s has unsupported geometry type %T", filename, id, g)
		}
		switch {
		case kind == PolygonShapes && len(geo.Polygon) == 0:
			return nil, fmt.Errorf("gridclim: shape file %s: record %s is not a polygon", filename, id)
		case kind == PointShapes && len(geo.Polygon) != 0:
			return nil, fmt.Errorf("gridclim: shape file %s: record %s is not a point", filename, id)
		}
		set.Geographies = append(set.Geographies, geo)
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("gridclim: reading shape file %s: %v", filename, err)
	}
	return set, nil
}

// resolveIDField picks the first of the descriptor's candidate id
// attributes actually present in the shapefile. The decoder treats a
// missing attribute as an error, so each candidate is probed with a
// fresh decoder.
func resolveIDField(filename string, desc *GeographyDescriptor) (string, error) {
	candidates := append([]string{desc.IDField}, desc.AltIDFields...)
	for _, field := range candidates {
		dec, err := shp.NewDecoder(filename)
		if err != nil {
			return "", fmt.Errorf("gridclim: opening shape file %s: %v", filename, err)
		}
		dec.DecodeRowFields(field)
		err = dec.Error()
		dec.Close()
		if err == nil {
			return field, nil
		}
	}
	return "", fmt.Errorf("gridclim: shape file %s has none of the %s id attributes %v", filename, desc.Name, candidates)
}
