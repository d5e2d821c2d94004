// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to retrieve conditions data, such as detector
// geometries, from the instrument database.
package conddb // import "github.com/go-lpc/revan/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/go-lpc/revan/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

const timeout = 5 * time.Second

var (
	host = "localhost"
	usr  = "username"
	pwd  = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to easily retrieve conditions data
// from the instrument database.
type DB struct {
	db   *sql.DB
	name string // name of the conditions database
}

// Open opens a connection to the conditions database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

// Name returns the name of the conditions database.
func (db *DB) Name() string { return db.name }

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastGeometry returns the name of the most recently registered geometry.
func (db *DB) LastGeometry(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name FROM geometries ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return name, fmt.Errorf("conddb: could not query last geometry: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&name)
		if err != nil {
			return name, fmt.Errorf("conddb: could not get geometry name: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return name, fmt.Errorf("conddb: could not scan db for last geometry: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return name, fmt.Errorf("conddb: context error while retrieving last geometry: %w", err)
	}

	if name == "" {
		return name, fmt.Errorf("conddb: no geometry in %q db", db.name)
	}

	return name, nil
}

// Geometries returns the names of all the registered geometries,
// most recent first.
func (db *DB) Geometries(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var names []string
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name FROM geometries ORDER BY datetime DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query geometries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		err = rows.Scan(&name)
		if err != nil {
			return names, fmt.Errorf("conddb: could not scan geometry name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return names, fmt.Errorf("conddb: could not scan db for geometries: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return names, fmt.Errorf("conddb: context error while retrieving geometries: %w", err)
	}

	return names, nil
}

// Geometry loads the named geometry.
// Detectors are returned in the order of their index in the geometry.
func (db *DB) Geometry(ctx context.Context, name string) (*geom.Geometry, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT
	detectors.name, detectors.type,
	detectors.xmin, detectors.ymin, detectors.zmin,
	detectors.xmax, detectors.ymax, detectors.zmax,
	detectors.dx, detectors.dy, detectors.dz,
	detectors.tracking, detectors.trigger
FROM detectors
JOIN geometries ON geometries.identifier=detectors.geometry
WHERE geometries.name=?
ORDER BY detectors.idx
`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not run geometry query: %w", err)
	}
	defer rows.Close()

	var dets []geom.Detector
	for rows.Next() {
		var (
			det   geom.Detector
			dtype string
			min   r3.Vec
			max   r3.Vec
			vox   r3.Vec
		)
		err = rows.Scan(
			&det.Name, &dtype,
			&min.X, &min.Y, &min.Z,
			&max.X, &max.Y, &max.Z,
			&vox.X, &vox.Y, &vox.Z,
			&det.Tracking, &det.Trigger,
		)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not scan row %d of geometry %q: %w", len(dets), name, err)
		}
		det.Type, err = geom.ParseType(dtype)
		if err != nil {
			return nil, fmt.Errorf("conddb: invalid detector %q of geometry %q: %w", det.Name, name, err)
		}
		det.Min = min
		det.Max = max
		det.Voxel = vox
		dets = append(dets, det)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for geometry %q: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving geometry %q: %w", name, err)
	}

	geo, err := geom.New(name, dets)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not build geometry %q: %w", name, err)
	}

	return geo, nil
}
