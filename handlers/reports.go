package handlers

import (
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	geojson "github.com/paulmach/go.geojson"

	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
	ws "github.com/Abhinavsb985/Smart-Traffic-Control/websocket"
)

// WebSocket upgrader
var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GetReports returns the current feed.
func (h *Handlers) GetReports(c *gin.Context) {
	feed := h.svc.Feed()
	reports := feed.Reports()
	resp := models.ReportsResponse{Reports: reports, Count: len(reports)}
	if at := feed.RefreshedAt(); !at.IsZero() {
		resp.RefreshedAt = &at
	}
	c.JSON(http.StatusOK, resp)
}

// RefreshReports reloads the feed from the store and returns it.
func (h *Handlers) RefreshReports(c *gin.Context) {
	if err := h.svc.Feed().Refresh(c.Request.Context()); err != nil {
		log.WithError(err).Warn("Feed refresh failed")
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "Failed to load reports: " + err.Error()})
		return
	}
	h.GetReports(c)
}

// ReportsGeoJSON exports the feed as a FeatureCollection of points.
func (h *Handlers) ReportsGeoJSON(c *gin.Context) {
	fc := geojson.NewFeatureCollection()
	for _, r := range h.svc.Feed().Reports() {
		f := geojson.NewPointFeature([]float64{r.Longitude, r.Latitude})
		f.ID = r.ID
		f.SetProperty("description", r.Description)
		f.SetProperty("location", r.Location)
		f.SetProperty("user_email", r.UserEmail)
		f.SetProperty("created_at", r.CreatedAt.Format(time.RFC3339Nano))
		if r.ImageURL != "" {
			f.SetProperty("image_url", r.ImageURL)
		}
		fc.AddFeature(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		log.WithError(err).Error("Failed to encode GeoJSON")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to encode reports"})
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

// ListenReports upgrades to a WebSocket that receives the feed on connect and
// after every refresh.
func (h *Handlers) ListenReports(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "live updates unavailable"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade connection to WebSocket")
		return
	}

	client := ws.NewClient(h.hub, conn)
	reports := h.svc.Feed().Reports()
	snapshot, err := ws.SnapshotMessage(reports, time.Now())
	if err == nil {
		client.Send(snapshot)
	}

	if !h.hub.Add(client) {
		conn.Close()
		return
	}
	go client.WritePump()
	go client.ReadPump()
}
