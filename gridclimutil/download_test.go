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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/exposurelab/gridclim"
)

func TestDataURL(t *testing.T) {
	want := "https://www.northwestknowledge.net/metdata/data/tmmx_2009.nc"
	if got := DataURL(gridclim.TMMX, 2009); got != want {
		t.Errorf("got %q; want %q", got, want)
	}
}

func TestDataPath(t *testing.T) {
	want := filepath.Join("data", "pr_2015.nc")
	if got := DataPath("data", gridclim.PR, 2015); got != want {
		t.Errorf("got %q; want %q", got, want)
	}
}

func TestMaybeDownload(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("netcdf bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "tmmx_2009.nc")
	if err := maybeDownload(context.Background(), srv.URL, dest); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "netcdf bytes" {
		t.Errorf("downloaded %q; want %q", b, "netcdf bytes")
	}

	// A second call must skip the fetch.
	if err := maybeDownload(context.Background(), srv.URL, dest); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Errorf("server hit %d times; want 1", hits)
	}
}

func TestMaybeDownloadNotFound(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "tmmx_1803.nc")
	if err := maybeDownload(context.Background(), srv.URL, dest); err == nil {
		t.Fatal("expected error for a file missing from the archive")
	}
	if hits != 1 {
		t.Errorf("server hit %d times; want no retries on 404", hits)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("partial file left behind after failed download")
	}
}

func TestMaybeDownloadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dest := filepath.Join(t.TempDir(), "tmmx_2009.nc")
	if err := maybeDownload(ctx, "http://127.0.0.1:0/never", dest); err == nil {
		t.Error("expected error for canceled context")
	}
}
