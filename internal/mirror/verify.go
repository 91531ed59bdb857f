// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package mirror

import (
	"context"
	"os"
	"strings"

	"gorm.io/gorm"

	"github.com/tomtom215/fleetvault/internal/logging"
)

// Duplication reports duplicate rows found in the keyless tables.
type Duplication struct {
	// Tables maps table name to number of surplus rows.
	Tables map[string]int64 `json:"tables"`
}

// Found reports whether any table holds duplicates.
func (d Duplication) Found() bool {
	for _, n := range d.Tables {
		if n > 0 {
			return true
		}
	}
	return false
}

// distinctKey is the column set defining a unique keyless row.
var distinctKey = map[string]string{
	"METADATA": "field, value",
	"VAR_MAP":  "var_name, sql_type, functional_type",
}

// countsByMaxID reports whether table is sized by MAX(id) rather than COUNT(*).
func countsByMaxID(table string) bool {
	if table == "ROI_MAP" || table == "VAR_MAP" || strings.HasPrefix(table, "METADATA") {
		return false
	}
	return true
}

// tableCounts sizes every table of db. Tables with an id column report
// MAX(id), which matches the row count for append-only data and is cheap
// on large tables.
func tableCounts(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	tables, err := db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(tables))
	for _, table := range userTables(tables) {
		var n int64
		if countsByMaxID(table) {
			err := db.WithContext(ctx).Raw("SELECT COALESCE(MAX(id), 0) FROM " + quote(table)).Scan(&n).Error
			if err == nil {
				counts[table] = n
				continue
			}
		}
		if err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM " + quote(table)).Scan(&n).Error; err != nil {
			logging.Debug().Err(err).Str("table", table).Msg("Could not count table")
			continue
		}
		counts[table] = n
	}
	return counts, nil
}

// TableCounts returns the size of every local table.
func (m *Mirror) TableCounts(ctx context.Context) (map[string]int64, error) {
	return tableCounts(ctx, m.local)
}

// Compare returns how much of the remote data is present locally, as a
// percentage. It returns -1 when either side cannot be measured.
func (m *Mirror) Compare(ctx context.Context) float64 {
	local, err := tableCounts(ctx, m.local)
	if err != nil || len(local) == 0 {
		return -1
	}
	remote, err := tableCounts(ctx, m.remote)
	if err != nil {
		return -1
	}

	var localTotal, remoteTotal int64
	for table := range union(local, remote) {
		localTotal += local[table]
		remoteTotal += remote[table]
	}
	if remoteTotal == 0 {
		return -1
	}

	pct := float64(localTotal) / float64(remoteTotal) * 100
	if pct > 100 {
		logging.Warn().Float64("percentage", pct).Str("path", m.dst).Msg("Local mirror holds more rows than the remote database")
	}
	return pct
}

// CheckDuplication counts surplus rows in METADATA and VAR_MAP.
func (m *Mirror) CheckDuplication(ctx context.Context) Duplication {
	d := Duplication{Tables: make(map[string]int64)}
	for _, table := range keylessTables {
		if !m.local.Migrator().HasTable(table) {
			continue
		}
		var total, distinct int64
		db := m.local.WithContext(ctx)
		if err := db.Raw("SELECT COUNT(*) FROM " + quote(table)).Scan(&total).Error; err != nil {
			continue
		}
		q := "SELECT COUNT(*) FROM (SELECT DISTINCT " + distinctKey[table] + " FROM " + quote(table) + ")"
		if err := db.Raw(q).Scan(&distinct).Error; err != nil {
			continue
		}
		d.Tables[table] = total - distinct
		if total > distinct {
			logging.Warn().Str("table", table).Int64("total", total).Int64("distinct", distinct).Msg("Duplicate rows in mirror")
		}
	}
	return d
}

func union(a, b map[string]int64) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

// LocalTableCounts sizes the tables of an existing mirror file without a
// remote connection.
func LocalTableCounts(ctx context.Context, path string) (map[string]int64, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	defer closeDB(db)
	return tableCounts(ctx, db)
}
