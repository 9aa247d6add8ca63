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
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"
	"github.com/exposurelab/gridclim"
	log "github.com/sirupsen/logrus"
)

// dataURLBase is the Northwest Knowledge Network archive serving the
// gridMET NetCDF files.
const dataURLBase = "https://www.northwestknowledge.net/metdata/data"

// DataURL returns the archive URL for one variable-year file.
func DataURL(v gridclim.Variable, year int) string {
	return fmt.Sprintf("%s/%s_%d.nc", dataURLBase, v, year)
}

// DataPath returns the local path for one variable-year file under
// the data directory.
func DataPath(dir string, v gridclim.Variable, year int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.nc", v, year))
}

// maybeDownload fetches url into dest unless dest already exists, so
// interrupted runs pick up where they left off. Transient fetch
// failures are retried with exponential backoff; the file appears at
// dest only after a complete download.
func maybeDownload(ctx context.Context, url, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		log.WithField("file", dest).Info("already downloaded; skipping")
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("gridclim: creating download directory: %v", err)
	}
	log.WithFields(log.Fields{"url": url, "file": dest}).Info("downloading")

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(func() error { return fetchFile(ctx, url, dest) }, policy)
}

func fetchFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("gridclim: building request for %s: %v", url, err))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("gridclim: fetching %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return backoff.Permanent(fmt.Errorf("gridclim: %s does not exist in the archive", url))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gridclim: fetching %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*")
	if err != nil {
		return backoff.Permanent(fmt.Errorf("gridclim: creating download file: %v", err))
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("gridclim: downloading %s: %v", url, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("gridclim: downloading %s: %v", url, err)
	}
	return os.Rename(tmp.Name(), dest)
}

// RunDownload fetches the NetCDF file for every configured variable
// and year into the data directory.
func RunDownload(ctx context.Context, cfg *Config) error {
	for _, year := range cfg.Years {
		for _, v := range cfg.Variables {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := maybeDownload(ctx, DataURL(v, year), DataPath(cfg.DataDir, v, year)); err != nil {
				return err
			}
		}
	}
	return nil
}
