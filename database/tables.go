package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

// ErrRecordNotFound is returned when a row that was just written cannot be read back.
var ErrRecordNotFound = errors.New("record not found")

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

func validIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// Columns assigned by the store; client supplied values for them are dropped.
const (
	columnID        = "id"
	columnCreatedAt = "created_at"
)

// reportColumns is the column order used for every select of the reports table.
var reportColumns = []string{
	"id", "description", "image_url", "location", "latitude", "longitude", "user_email", "created_at",
}

// TableStore is a generic row store over a fixed set of whitelisted tables.
type TableStore struct {
	db     *sql.DB
	tables map[string][]string
}

// NewTableStore creates a table store serving the reports table under the given name.
func NewTableStore(db *sql.DB, reportsTable string) (*TableStore, error) {
	if !validIdentifier(reportsTable) {
		return nil, fmt.Errorf("invalid reports table name %q", reportsTable)
	}
	return &TableStore{
		db:     db,
		tables: map[string][]string{reportsTable: reportColumns},
	}, nil
}

func (s *TableStore) columns(table string) ([]string, error) {
	cols, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	return cols, nil
}

func hasColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}

// Insert writes record into table and returns the stored row, including the
// server assigned id and created_at.
func (s *TableStore) Insert(ctx context.Context, table string, record models.Record) (models.Record, error) {
	cols, err := s.columns(table)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(record))
	for k := range record {
		if k == columnID || k == columnCreatedAt {
			continue
		}
		if !hasColumn(cols, k) {
			return nil, fmt.Errorf("unknown column %q for table %q", k, table)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	id := uuid.NewString()
	insertCols := append([]string{columnID}, keys...)
	args := make([]any, 0, len(insertCols))
	args = append(args, id)
	for _, k := range keys {
		args = append(args, record[k])
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(insertCols)), ", ")

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(insertCols, ", "), placeholders)
	result, err := s.db.ExecContext(ctx, query, args...)
	logResult("insert "+table, result, err, true)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	stored, err := s.selectByID(ctx, table, cols, id)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"table": table, "id": id}).Debug("Inserted record")
	return stored, nil
}

func (s *TableStore) selectByID(ctx context.Context, table string, cols []string, id string) (models.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(cols, ", "), table)
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read back %s %s: %w", table, id, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows, cols)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrRecordNotFound)
	}
	return records[0], nil
}

// Select returns every row of table ordered by orderBy. Ties are broken by id
// in the same direction so repeated calls return the same order.
func (s *TableStore) Select(ctx context.Context, table, orderBy string, dir models.Direction) ([]models.Record, error) {
	cols, err := s.columns(table)
	if err != nil {
		return nil, err
	}
	if !hasColumn(cols, orderBy) {
		return nil, fmt.Errorf("unknown order column %q for table %q", orderBy, table)
	}

	var sqlDir string
	switch dir {
	case models.Ascending:
		sqlDir = "ASC"
	case models.Descending:
		sqlDir = "DESC"
	default:
		return nil, fmt.Errorf("invalid sort direction %q", dir)
	}

	order := fmt.Sprintf("%s %s", orderBy, sqlDir)
	if orderBy != columnID {
		order += fmt.Sprintf(", %s %s", columnID, sqlDir)
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(cols, ", "), table, order)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	return scanRecords(rows, cols)
}

// Count returns the number of rows in table.
func (s *TableStore) Count(ctx context.Context, table string) (int, error) {
	if _, err := s.columns(table); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

func scanRecords(rows *sql.Rows, cols []string) ([]models.Record, error) {
	var records []models.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record := make(models.Record, len(cols))
		for i, c := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			record[c] = v
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}
