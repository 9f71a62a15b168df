package kvstore

import (
	"database/sql"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS kv_records (
	part VARCHAR(191) NOT NULL,
	k VARCHAR(191) NOT NULL,
	v MEDIUMBLOB NOT NULL,
	PRIMARY KEY (part, k)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin;
`

// MySQL is the database-backed Store. All records share one table keyed
// by (part, k); the binary collation makes index order match the byte
// order the scans rely on.
type MySQL struct {
	db *sql.DB
}

// NewMySQL connects with the given DSN and ensures the schema exists.
func NewMySQL(dsn string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.WithMessage(err, "failed to ping database")
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, errors.WithMessage(err, "failed to ensure kv_records table")
	}
	jww.INFO.Printf("kvstore: database connection established")
	return &MySQL{db: db}, nil
}

// WrapDB builds a MySQL store around an existing connection, ensuring
// the schema. Used by tests that manage their own connection.
func WrapDB(db *sql.DB) (*MySQL, error) {
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, errors.WithMessage(err, "failed to ensure kv_records table")
	}
	return &MySQL{db: db}, nil
}

func (s *MySQL) Put(partition, key string, value []byte) error {
	_, err := s.db.Exec(
		"INSERT INTO kv_records (part, k, v) VALUES (?, ?, ?) "+
			"ON DUPLICATE KEY UPDATE v = VALUES(v)",
		partition, key, value)
	return errors.WithMessagef(err, "put %s/%s", partition, key)
}

func (s *MySQL) Get(partition, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRow(
		"SELECT v FROM kv_records WHERE part = ? AND k = ?",
		partition, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "get %s/%s", partition, key)
	}
	return v, nil
}

func (s *MySQL) Delete(partition, key string) error {
	_, err := s.db.Exec(
		"DELETE FROM kv_records WHERE part = ? AND k = ?", partition, key)
	return errors.WithMessagef(err, "delete %s/%s", partition, key)
}

func (s *MySQL) Scan(partition string, q Query) ([]Record, error) {
	var sb strings.Builder
	sb.WriteString("SELECT k, v FROM kv_records WHERE part = ?")
	args := []interface{}{partition}

	if q.Before != "" {
		sb.WriteString(" AND k < ?")
		args = append(args, q.Before)
	}
	if q.After != "" {
		sb.WriteString(" AND k > ?")
		args = append(args, q.After)
	}
	sb.WriteString(" ORDER BY k DESC")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		return nil, errors.WithMessagef(err, "scan %s", partition)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Key, &rec.Value); err != nil {
			return nil, errors.WithMessagef(err, "scan %s", partition)
		}
		out = append(out, rec)
	}
	return out, errors.WithMessagef(rows.Err(), "scan %s", partition)
}

func (s *MySQL) DeletePartition(partition string) error {
	_, err := s.db.Exec("DELETE FROM kv_records WHERE part = ?", partition)
	return errors.WithMessagef(err, "delete partition %s", partition)
}

func (s *MySQL) Close() error { return s.db.Close() }
