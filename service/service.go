package service

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"

	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

// Options configures a Service.
type Options struct {
	Tables        TableStore
	Objects       ObjectStore
	Publisher     EventPublisher
	Clock         Clock
	ReportsTable  string
	Location      models.Location
	MaxImageBytes int
	DismissAfter  time.Duration
}

// Service bundles the report components used by the HTTP layer.
type Service struct {
	store    *ReportStore
	feed     *Feed
	workflow *Workflow
	forms    *Forms
}

// New wires the uploader, store, feed and workflow together.
func New(opts Options) *Service {
	uploader := NewAssetUploader(opts.Objects, opts.MaxImageBytes)
	store := NewReportStore(opts.Tables, opts.ReportsTable)
	feed := NewFeed(store)
	workflow := NewWorkflow(Dependencies{
		Uploader:      uploader,
		Store:         store,
		Feed:          feed,
		Publisher:     opts.Publisher,
		Clock:         opts.Clock,
		Location:      opts.Location,
		DismissAfter:  opts.DismissAfter,
		MaxImageBytes: opts.MaxImageBytes,
	})
	return &Service{
		store:    store,
		feed:     feed,
		workflow: workflow,
		forms:    NewForms(workflow),
	}
}

func (s *Service) Feed() *Feed { return s.feed }

func (s *Service) Forms() *Forms { return s.forms }

func (s *Service) Store() *ReportStore { return s.store }

func (s *Service) Workflow() *Workflow { return s.workflow }

// Start loads the initial feed. A failure is logged; the feed stays empty
// until the next refresh.
func (s *Service) Start(ctx context.Context) {
	if err := s.feed.Refresh(ctx); err != nil {
		log.WithError(&FeedRefreshError{Err: err}).Warn("Initial feed load failed")
		return
	}
	log.Infof("Feed loaded with %d reports", s.feed.Count())
}

// TestConnection checks that the report table can be read and returns the
// number of stored reports.
func (s *Service) TestConnection(ctx context.Context) models.ConnectionTestResponse {
	count, err := s.store.Count(ctx)
	if err != nil {
		log.WithError(err).Error("Connection test failed")
		return models.ConnectionTestResponse{Success: false, Error: err.Error()}
	}
	return models.ConnectionTestResponse{
		Success:      true,
		Message:      fmt.Sprintf("Connection successful! Reports in database: %d", count),
		ReportsCount: count,
	}
}
