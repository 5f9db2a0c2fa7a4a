package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang/geo/s2"
)

// Location is the fixed geographic point reports are filed against.
type Location struct {
	Label     string  `json:"label"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String renders the location the way it is stored in the location column,
// e.g. "Kottakkal, Kerala (10.5276, 76.2144)".
func (l Location) String() string {
	return fmt.Sprintf("%s (%s, %s)", l.Label,
		strconv.FormatFloat(l.Latitude, 'f', -1, 64),
		strconv.FormatFloat(l.Longitude, 'f', -1, 64))
}

// Valid reports whether the coordinates are a real point on the sphere.
func (l Location) Valid() bool {
	return s2.LatLngFromDegrees(l.Latitude, l.Longitude).IsValid()
}

// Report represents a row of the reports table
type Report struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url,omitempty"`
	Location    string    `json:"location"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	UserEmail   string    `json:"user_email"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReportDraft is a report that has not been persisted yet. The id and
// creation time are assigned by the store.
type ReportDraft struct {
	Description string
	ImageURL    string
	Location    Location
	SubmittedBy string
}

// Record is a single row exchanged with the table store.
type Record map[string]any

// Direction is a sort direction for table selects.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ReportsResponse is returned by the feed endpoints.
type ReportsResponse struct {
	Reports     []Report   `json:"reports"`
	Count       int        `json:"count"`
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
}

// ReportCreatedEvent is published after a report has been persisted.
type ReportCreatedEvent struct {
	ID          string  `json:"id"`
	Timestamp   string  `json:"timestamp"`
	Description string  `json:"description"`
	ImageURL    string  `json:"image_url,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	UserEmail   string  `json:"user_email"`
}

// EventType is the AMQP message type of the event.
func (ReportCreatedEvent) EventType() string { return "report.created" }

// BroadcastMessage represents a message sent to WebSocket clients
type BroadcastMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConnectionTestResponse reports whether the backing store is reachable.
type ConnectionTestResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
	ReportsCount int    `json:"reports_count"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	Timestamp        string `json:"timestamp"`
	ConnectedClients int    `json:"connected_clients"`
	FeedSize         int    `json:"feed_size"`
}
