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
	"strconv"
	"strings"
	"time"
)

// DateFilter restricts which day layers of a cube are processed. It
// exists for debugging and spot-checking; production runs process
// full years. Specs take one of four forms:
//
//	2009-01-01:2009-03-31   inclusive date range
//	month:1,2,12            only the listed months
//	dayofmonth:1,15         only the listed days of the month
//	date:01-15,07-04        only the listed month-day pairs
type DateFilter struct {
	min, max time.Time
	kind     string
	values   map[string]bool
}

// ParseDateFilter parses a filter spec. An empty spec returns nil,
// meaning no filtering.
func ParseDateFilter(spec string) (*DateFilter, error) {
	if spec == "" {
		return nil, nil
	}
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("gridclim: date filter %q must contain ':'", spec)
	}
	kind := strings.ToLower(parts[0])
	switch kind {
	case "month", "dayofmonth", "date":
		f := &DateFilter{kind: kind, values: make(map[string]bool)}
		for _, v := range strings.Split(parts[1], ",") {
			v = strings.TrimSpace(v)
			if kind == "date" {
				md := strings.SplitN(v, "-", 2)
				if len(md) != 2 {
					return nil, fmt.Errorf("gridclim: date filter %q: %q is not a month-day pair", spec, v)
				}
				m, err := strconv.Atoi(md[0])
				if err != nil {
					return nil, fmt.Errorf("gridclim: date filter %q: %v", spec, err)
				}
				d, err := strconv.Atoi(md[1])
				if err != nil {
					return nil, fmt.Errorf("gridclim: date filter %q: %v", spec, err)
				}
				f.values[fmt.Sprintf("%02d-%02d", m, d)] = true
				continue
			}
			if _, err := strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("gridclim: date filter %q: %v", spec, err)
			}
			f.values[v] = true
		}
		return f, nil
	}
	min, err := time.Parse("2006-01-02", parts[0])
	if err != nil {
		return nil, fmt.Errorf("gridclim: date filter %q: %v", spec, err)
	}
	max, err := time.Parse("2006-01-02", parts[1])
	if err != nil {
		return nil, fmt.Errorf("gridclim: date filter %q: %v", spec, err)
	}
	return &DateFilter{kind: "range", min: min, max: max}, nil
}

// Accept reports whether the given day passes the filter. A nil
// filter accepts everything.
func (f *DateFilter) Accept(day time.Time) bool {
	if f == nil {
		return true
	}
	switch f.kind {
	case "month":
		return f.values[strconv.Itoa(int(day.Month()))]
	case "dayofmonth":
		return f.values[strconv.Itoa(day.Day())]
	case "date":
		return f.values[day.Format("01-02")]
	}
	return !day.Before(f.min) && !day.After(f.max)
}
