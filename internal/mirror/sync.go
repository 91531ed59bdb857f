// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package mirror

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/metrics"
)

// SyncStats summarizes one Sync call.
type SyncStats struct {
	TablesCreated []string         `json:"tables_created,omitempty"`
	RowsCopied    map[string]int64 `json:"rows_copied"`
}

// Total returns the number of rows copied across all tables.
func (s *SyncStats) Total() int64 {
	var n int64
	for _, c := range s.RowsCopied {
		n += c
	}
	return n
}

func (s *SyncStats) add(table string, n int64) {
	if n == 0 {
		return
	}
	s.RowsCopied[table] += n
	metrics.BackupMirrorRows.WithLabelValues(tableFamily(table)).Add(float64(n))
}

// Sync brings the local mirror up to date with the remote database.
//
// It returns ErrNotReady when the remote VAR_MAP table is empty.
func (m *Mirror) Sync(ctx context.Context) (*SyncStats, error) {
	stats := &SyncStats{RowsCopied: make(map[string]int64)}

	var ready int64
	if err := m.remote.WithContext(ctx).Raw("SELECT COUNT(*) FROM " + quote("VAR_MAP")).Scan(&ready).Error; err != nil {
		return stats, fmt.Errorf("check VAR_MAP: %w", err)
	}
	if ready == 0 {
		return stats, fmt.Errorf("%w: no data available in VAR_MAP", ErrNotReady)
	}

	remoteTables, err := m.remote.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return stats, fmt.Errorf("list remote tables: %w", err)
	}
	remoteTables = userTables(remoteTables)
	present := make(map[string]bool, len(remoteTables))
	for _, t := range remoteTables {
		present[t] = true
	}

	// New tables are created and copied in full.
	for _, table := range remoteTables {
		if m.local.Migrator().HasTable(table) {
			continue
		}
		n, err := m.copyTable(ctx, table)
		if err != nil {
			return stats, fmt.Errorf("copy table %s: %w", table, err)
		}
		stats.TablesCreated = append(stats.TablesCreated, table)
		stats.add(table, n)
	}

	// Existing tables are extended from their local MAX(id).
	tables, err := m.roiTables(ctx)
	if err != nil {
		return stats, err
	}
	tables = append(tables, incrementalTables...)
	for _, table := range tables {
		if !present[table] {
			continue
		}
		n, err := m.updateTable(ctx, table)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			logging.Warn().Err(err).Str("table", table).Msg("Could not update table")
			continue
		}
		stats.add(table, n)
	}

	for _, table := range keylessTables {
		if !present[table] {
			continue
		}
		n, err := m.syncKeylessTable(ctx, table)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			logging.Warn().Err(err).Str("table", table).Msg("Could not sync table")
			continue
		}
		stats.add(table, n)
	}

	return stats, nil
}

func userTables(tables []string) []string {
	out := tables[:0]
	for _, t := range tables {
		if !strings.HasPrefix(t, "sqlite_") {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// roiTables lists ROI_<idx> for every roi_idx in the local ROI_MAP.
func (m *Mirror) roiTables(ctx context.Context) ([]string, error) {
	if !m.local.Migrator().HasTable("ROI_MAP") {
		return nil, nil
	}
	var idx []int64
	if err := m.local.WithContext(ctx).Raw("SELECT DISTINCT roi_idx FROM " + quote("ROI_MAP") + " ORDER BY roi_idx").Scan(&idx).Error; err != nil {
		return nil, fmt.Errorf("read ROI_MAP: %w", err)
	}
	out := make([]string, len(idx))
	for i, n := range idx {
		out[i] = fmt.Sprintf("ROI_%d", n)
	}
	return out, nil
}

type column struct {
	name string
	typ  string
	pk   bool
}

func (m *Mirror) remoteColumns(table string) ([]column, error) {
	types, err := m.remote.Migrator().ColumnTypes(table)
	if err != nil {
		return nil, err
	}
	cols := make([]column, 0, len(types))
	for _, ct := range types {
		c := column{name: ct.Name(), typ: ct.DatabaseTypeName()}
		if full, ok := ct.ColumnType(); ok && full != "" {
			c.typ = full
		}
		if pk, ok := ct.PrimaryKey(); ok {
			c.pk = pk
		}
		cols = append(cols, c)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s has no columns", table)
	}
	return cols, nil
}

func createStatement(table string, cols []column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quote(c.name) + " " + sqliteType(c.typ)
		if c.pk && strings.EqualFold(c.name, "id") {
			defs[i] += " PRIMARY KEY"
		}
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(defs, ", "))
}

func insertStatement(verb, table string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	return fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", verb, quote(table), strings.Join(quoted, ", "), placeholders)
}

// copyTable creates table locally and copies every remote row.
func (m *Mirror) copyTable(ctx context.Context, table string) (int64, error) {
	cols, err := m.remoteColumns(table)
	if err != nil {
		return 0, err
	}
	if err := m.local.WithContext(ctx).Exec(createStatement(table, cols)).Error; err != nil {
		return 0, fmt.Errorf("create: %w", err)
	}

	rows, err := m.remote.WithContext(ctx).Raw("SELECT * FROM " + quote(table)).Rows()
	if err != nil {
		return 0, fmt.Errorf("select: %w", err)
	}
	defer rows.Close()

	names, conv, err := rowShape(rows)
	if err != nil {
		return 0, err
	}
	stmt := insertStatement("INSERT OR IGNORE", table, names)

	var copied int64
	batch := make([][]any, 0, m.opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := m.insert(ctx, stmt, batch); err != nil {
			return err
		}
		if table == damTable {
			m.appendDAM(batch)
		}
		copied += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		row, err := scanRow(rows, conv)
		if err != nil {
			return copied, err
		}
		batch = append(batch, row)
		if len(batch) >= m.opts.BatchSize {
			if err := flush(); err != nil {
				return copied, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return copied, err
	}
	if err := flush(); err != nil {
		return copied, err
	}

	logging.Debug().Str("table", table).Int64("rows", copied).Msg("Copied table")
	return copied, nil
}

// updateTable fetches rows with id above the local maximum in ordered
// chunks until a short chunk shows the mirror has caught up.
func (m *Mirror) updateTable(ctx context.Context, table string) (int64, error) {
	if !m.local.Migrator().HasTable(table) {
		logging.Warn().Str("table", table).Msg("Table missing locally, copying in full")
		return m.copyTable(ctx, table)
	}

	var cursor int64
	if err := m.local.WithContext(ctx).Raw("SELECT COALESCE(MAX(id), 0) FROM " + quote(table)).Scan(&cursor).Error; err != nil {
		return 0, fmt.Errorf("read local cursor: %w", err)
	}

	query := "SELECT * FROM " + quote(table) + " WHERE id > ? ORDER BY id LIMIT ?"
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		rows, err := m.remote.WithContext(ctx).Raw(query, cursor, m.opts.ChunkSize).Rows()
		if err != nil {
			return total, fmt.Errorf("select chunk after id %d: %w", cursor, err)
		}
		names, chunk, err := readAll(rows)
		if err != nil {
			return total, err
		}
		if len(chunk) > 0 {
			idCol := indexOf(names, "id")
			if idCol < 0 {
				return total, fmt.Errorf("table %s has no id column", table)
			}
			if err := m.insert(ctx, insertStatement("INSERT OR IGNORE", table, names), chunk); err != nil {
				return total, err
			}
			if table == damTable {
				m.appendDAM(chunk)
			}
			total += int64(len(chunk))
			next, ok := asInt64(chunk[len(chunk)-1][idCol])
			if !ok || next <= cursor {
				return total, fmt.Errorf("table %s: cursor did not advance past %d", table, cursor)
			}
			cursor = next
		}
		if len(chunk) < m.opts.ChunkSize {
			break
		}
	}

	if total > 0 {
		logging.Info().Str("table", table).Int64("rows", total).Int64("max_id", cursor).Msg("Incremental backup inserted new records")
	}
	return total, nil
}

// syncKeylessTable inserts remote rows that have no identical local row.
func (m *Mirror) syncKeylessTable(ctx context.Context, table string) (int64, error) {
	rows, err := m.remote.WithContext(ctx).Raw("SELECT * FROM " + quote(table)).Rows()
	if err != nil {
		return 0, fmt.Errorf("select: %w", err)
	}
	names, remoteRows, err := readAll(rows)
	if err != nil || len(remoteRows) == 0 {
		return 0, err
	}

	conds := make([]string, len(names))
	for i, c := range names {
		conds[i] = quote(c) + " IS ?"
	}
	exists := "SELECT COUNT(*) FROM " + quote(table) + " WHERE " + strings.Join(conds, " AND ")
	insert := insertStatement("INSERT", table, names)

	var inserted int64
	err = m.local.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range remoteRows {
			var n int64
			if err := tx.Raw(exists, row...).Scan(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			if err := tx.Exec(insert, row...).Error; err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if inserted > 0 {
		logging.Info().Str("table", table).Int64("inserted", inserted).Int("skipped", len(remoteRows)-int(inserted)).Msg("Row-by-row sync inserted new rows")
	}
	return inserted, nil
}

func (m *Mirror) insert(ctx context.Context, stmt string, batch [][]any) error {
	return m.local.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range batch {
			if err := tx.Exec(stmt, row...).Error; err != nil {
				return fmt.Errorf("insert: %w", err)
			}
		}
		return nil
	})
}

// appendDAM appends rows to the DAM activity file, one tab separated line
// per row. Failures are logged; the database copy is authoritative.
func (m *Mirror) appendDAM(batch [][]any) {
	f, err := os.OpenFile(m.damPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logging.Warn().Err(err).Str("path", m.damPath).Msg("Could not write to DAM file")
		return
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, row := range batch {
		fields := make([]string, len(row))
		for i, v := range row {
			fields[i] = formatValue(v)
		}
		w.WriteString(strings.Join(fields, "\t"))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		logging.Warn().Err(err).Str("path", m.damPath).Msg("Could not write to DAM file")
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// rowShape returns the column names and, per column, whether []byte values
// must be kept binary.
func rowShape(rows *sql.Rows) ([]string, []bool, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, len(types))
	binary := make([]bool, len(types))
	for i, ct := range types {
		names[i] = ct.Name()
		t := strings.ToLower(ct.DatabaseTypeName())
		binary[i] = strings.Contains(t, "blob") || strings.Contains(t, "binary")
	}
	return names, binary, nil
}

func scanRow(rows *sql.Rows, binary []bool) ([]any, error) {
	vals := make([]any, len(binary))
	ptrs := make([]any, len(binary))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range vals {
		if b, ok := v.([]byte); ok && !binary[i] {
			vals[i] = string(b)
		}
	}
	return vals, nil
}

func readAll(rows *sql.Rows) ([]string, [][]any, error) {
	defer rows.Close()
	names, binary, err := rowShape(rows)
	if err != nil {
		return nil, nil, err
	}
	var out [][]any
	for rows.Next() {
		row, err := scanRow(rows, binary)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, row)
	}
	return names, out, rows.Err()
}

func indexOf(names []string, want string) int {
	for i, n := range names {
		if strings.EqualFold(n, want) {
			return i
		}
	}
	return -1
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case int:
		return int64(x), true
	case uint64:
		return int64(x), true
	case float64:
		return int64(x), true
	case string:
		var n int64
		_, err := fmt.Sscan(x, &n)
		return n, err == nil
	case []byte:
		var n int64
		_, err := fmt.Sscan(string(x), &n)
		return n, err == nil
	default:
		return 0, false
	}
}
