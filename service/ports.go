package service

import (
	"context"

	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

// ObjectStore is the blob storage capability behind the asset uploader.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	PublicURLFor(key string) string
}

// TableStore is the row storage capability behind the report store.
type TableStore interface {
	Insert(ctx context.Context, table string, record models.Record) (models.Record, error)
	Select(ctx context.Context, table, orderBy string, dir models.Direction) ([]models.Record, error)
	Count(ctx context.Context, table string) (int, error)
}

// EventPublisher receives report.created events. rabbitmq.Publisher satisfies it.
type EventPublisher interface {
	Publish(message interface{}) error
}

// Uploader stores one asset and returns its reference.
type Uploader interface {
	Upload(ctx context.Context, data []byte, suggestedName string) (string, error)
}

// ReportCreator persists a draft.
type ReportCreator interface {
	Create(ctx context.Context, draft models.ReportDraft) (*models.Report, error)
}

// ReportLister returns every stored report, most recent first.
type ReportLister interface {
	ListAll(ctx context.Context) ([]models.Report, error)
}

// Refresher reloads a view from its source.
type Refresher interface {
	Refresh(ctx context.Context) error
}
