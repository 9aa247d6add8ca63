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

// Package sqload bulk-loads series artifacts into PostgreSQL.
package sqload

import (
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/exposurelab/gridclim"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// defaultPageSize is the number of records committed per transaction
// when Config.PageSize is zero.
const defaultPageSize = 5000

// Config controls one bulk load.
type Config struct {
	// URL is the PostgreSQL connection string.
	URL string

	// Table is the destination table. It is dropped and recreated at
	// the start of the load.
	Table string

	// Glob matches the series artifacts to load.
	Glob string

	// Workers is the number of concurrent COPY connections; zero or
	// less means one.
	Workers int

	// PageSize is the number of records committed per transaction;
	// zero or less selects defaultPageSize.
	PageSize int

	// RecordLimit caps the records loaded per artifact; zero means no
	// limit.
	RecordLimit int
}

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func (cfg *Config) check() error {
	if cfg.URL == "" {
		return fmt.Errorf("gridclim: sql load: connection URL must be set")
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return fmt.Errorf("gridclim: sql load: invalid table name %q", cfg.Table)
	}
	if cfg.Glob == "" {
		return fmt.Errorf("gridclim: sql load: artifact glob must be set")
	}
	return nil
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
	geography_id TEXT NOT NULL,
	date DATE NOT NULL,
	value DOUBLE PRECISION NOT NULL
)`, pq.QuoteIdentifier(table))
}

func indexSQL(table string) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s (geography_id, date)",
		pq.QuoteIdentifier(table+"_geography_date_idx"), pq.QuoteIdentifier(table))
}

// page is one transaction's worth of records from a single artifact.
type page struct {
	source string
	rows   [][]interface{}
}

// Load drops and recreates the destination table, streams every
// artifact matched by the glob into it over concurrent COPY
// connections, and finishes by indexing and vacuum-analyzing the
// table. The artifacts are read in sorted order so repeated loads
// behave the same way.
func Load(ctx context.Context, cfg Config) error {
	if err := cfg.check(); err != nil {
		return err
	}
	paths, err := filepath.Glob(cfg.Glob)
	if err != nil {
		return fmt.Errorf("gridclim: sql load: %v", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("gridclim: sql load: no artifacts match %s", cfg.Glob)
	}
	sort.Strings(paths)

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return fmt.Errorf("gridclim: sql load: %v", err)
	}
	defer db.Close()
	err = backoff.Retry(func() error { return db.PingContext(ctx) },
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx))
	if err != nil {
		return fmt.Errorf("gridclim: sql load: connecting to database: %v", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", pq.QuoteIdentifier(cfg.Table))); err != nil {
		return fmt.Errorf("gridclim: sql load: %v", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL(cfg.Table)); err != nil {
		return fmt.Errorf("gridclim: sql load: %v", err)
	}

	nprocs := cfg.Workers
	if nprocs < 1 {
		nprocs = 1
	}
	db.SetMaxOpenConns(nprocs)

	pages := make(chan page)
	errs := make([]error, nprocs)
	var loaded int64
	var mx sync.Mutex
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			for p := range pages {
				if errs[pp] != nil {
					continue // Drain the channel after a failure.
				}
				if err := copyPage(ctx, db, cfg.Table, p); err != nil {
					errs[pp] = err
					continue
				}
				mx.Lock()
				loaded += int64(len(p.rows))
				mx.Unlock()
			}
		}(pp)
	}

	pageSize := cfg.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	var readErr error
	for _, path := range paths {
		log.WithField("artifact", path).Info("loading")
		if readErr = readArtifact(path, cfg.RecordLimit, pageSize, func(rows [][]interface{}) error {
			select {
			case pages <- page{source: path, rows: rows}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}); readErr != nil {
			break
		}
	}
	close(pages)
	wg.Wait()
	if readErr != nil {
		return readErr
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	if _, err := db.ExecContext(ctx, indexSQL(cfg.Table)); err != nil {
		return fmt.Errorf("gridclim: sql load: %v", err)
	}
	// VACUUM cannot run inside a transaction block, so it goes
	// through the plain connection after the workers are done.
	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM ANALYZE %s", pq.QuoteIdentifier(cfg.Table))); err != nil {
		return fmt.Errorf("gridclim: sql load: %v", err)
	}
	log.WithFields(log.Fields{
		"table":     cfg.Table,
		"artifacts": len(paths),
		"records":   loaded,
	}).Info("load complete")
	return nil
}

// copyPage writes one page in its own transaction using the COPY
// protocol.
func copyPage(ctx context.Context, db *sql.DB, table string, p page) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("gridclim: sql load: %v", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, gridclim.SeriesColumns...))
	if err != nil {
		return fmt.Errorf("gridclim: sql load: %v", err)
	}
	for _, row := range p.rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			return fmt.Errorf("gridclim: sql load: copying %s: %v", p.source, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil { // Flush the COPY buffer.
		stmt.Close()
		return fmt.Errorf("gridclim: sql load: copying %s: %v", p.source, err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("gridclim: sql load: copying %s: %v", p.source, err)
	}
	return tx.Commit()
}

// readArtifact streams the records of one gzipped CSV artifact to
// emit in pages of at most pageSize rows, stopping after limit
// records if limit is positive.
func readArtifact(path string, limit, pageSize int, emit func(rows [][]interface{}) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("gridclim: sql load: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gridclim: sql load: reading %s: %v", path, err)
	}
	defer zr.Close()
	r := csv.NewReader(zr)
	r.FieldsPerRecord = len(gridclim.SeriesColumns)

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("gridclim: sql load: reading %s: %v", path, err)
	}
	if !reflect.DeepEqual(header, gridclim.SeriesColumns) {
		return fmt.Errorf("gridclim: sql load: %s has unexpected columns %v", path, header)
	}

	var rows [][]interface{}
	n := 0
	for limit <= 0 || n < limit {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("gridclim: sql load: reading %s: %v", path, err)
		}
		value, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return fmt.Errorf("gridclim: sql load: reading %s: %v", path, err)
		}
		rows = append(rows, []interface{}{rec[0], rec[1], value})
		n++
		if len(rows) == pageSize {
			if err := emit(rows); err != nil {
				return err
			}
			rows = nil
		}
	}
	if len(rows) > 0 {
		return emit(rows)
	}
	return nil
}
