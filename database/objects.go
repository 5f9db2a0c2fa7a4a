package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/apex/log"
	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

var (
	// ErrObjectNotFound is returned by Get for unknown keys.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectExists is returned by Put when the key is already taken.
	ErrObjectExists = errors.New("object already exists")
)

// Object is a stored binary blob.
type Object struct {
	Key         string
	ContentType string
	Data        []byte
}

// ObjectStore keeps uploaded images in MySQL and hands out public URLs served
// by the images endpoint.
type ObjectStore struct {
	db            *sql.DB
	bucket        string
	publicBaseURL string
}

// NewObjectStore creates an object store for a single bucket.
func NewObjectStore(db *sql.DB, bucket, publicBaseURL string) *ObjectStore {
	return &ObjectStore{
		db:            db,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Bucket returns the bucket name.
func (s *ObjectStore) Bucket() string {
	return s.bucket
}

// Put writes data under key. Existing objects are never overwritten.
func (s *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO report_images (bucket, object_key, content_type, data) VALUES (?, ?, ?, ?)",
		s.bucket, key, contentType, data)
	logResult("put object", result, err, true)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return "", fmt.Errorf("%s/%s: %w", s.bucket, key, ErrObjectExists)
		}
		return "", fmt.Errorf("failed to store object %s/%s: %w", s.bucket, key, err)
	}
	log.WithFields(log.Fields{"bucket": s.bucket, "key": key, "bytes": len(data)}).Info("Stored object")
	return s.PublicURLFor(key), nil
}

// PublicURLFor returns the URL the object is served from.
func (s *ObjectStore) PublicURLFor(key string) string {
	return fmt.Sprintf("%s/api/v3/images/%s/%s", s.publicBaseURL, url.PathEscape(s.bucket), url.PathEscape(key))
}

// Get loads an object by key.
func (s *ObjectStore) Get(ctx context.Context, key string) (*Object, error) {
	obj := &Object{Key: key}
	err := s.db.QueryRowContext(ctx,
		"SELECT content_type, data FROM report_images WHERE bucket = ? AND object_key = ?",
		s.bucket, key).Scan(&obj.ContentType, &obj.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", s.bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to load object %s/%s: %w", s.bucket, key, err)
	}
	return obj, nil
}
