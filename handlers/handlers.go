package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/Abhinavsb985/Smart-Traffic-Control/database"
	"github.com/Abhinavsb985/Smart-Traffic-Control/middleware"
	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
	"github.com/Abhinavsb985/Smart-Traffic-Control/service"
	ws "github.com/Abhinavsb985/Smart-Traffic-Control/websocket"
)

const serviceName = "road-reports"

// AuthProvider signs citizens up, in and out.
type AuthProvider interface {
	SignUp(ctx context.Context, req models.CreateUserRequest) (*models.Identity, error)
	SignIn(ctx context.Context, req models.LoginRequest) (string, *models.Identity, error)
	SignOut(ctx context.Context, token string) error
	TokenTTL() time.Duration
}

// ImageSource serves stored report images.
type ImageSource interface {
	Bucket() string
	Get(ctx context.Context, key string) (*database.Object, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	svc    *service.Service
	auth   AuthProvider
	images ImageSource
	hub    *ws.Hub
}

// NewHandlers creates a new handlers instance. hub may be nil, in which case
// the listen endpoint is unavailable.
func NewHandlers(svc *service.Service, auth AuthProvider, images ImageSource, hub *ws.Hub) *Handlers {
	return &Handlers{
		svc:    svc,
		auth:   auth,
		images: images,
		hub:    hub,
	}
}

// HealthCheck returns the service health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	connectedClients := 0
	if h.hub != nil {
		connectedClients, _ = h.hub.GetStats()
	}
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:           "healthy",
		Service:          serviceName,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		ConnectedClients: connectedClients,
		FeedSize:         h.svc.Feed().Count(),
	})
}

// ConnectionTest reports whether the report table can be read.
func (h *Handlers) ConnectionTest(c *gin.Context) {
	result := h.svc.TestConnection(c.Request.Context())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}

func identityFrom(c *gin.Context) (models.Identity, bool) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "not authenticated"})
	}
	return identity, ok
}

// statusFor maps workflow errors to HTTP status codes.
func statusFor(err error) int {
	var (
		verr *service.ValidationError
		uerr *service.UploadError
		serr *service.StoreError
	)
	switch {
	case errors.Is(err, service.ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.Is(err, service.ErrAssetTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &uerr):
		if errors.Is(err, service.ErrEmptyAsset) {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	case errors.As(err, &serr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	}
	c.JSON(status, models.ErrorResponse{Error: err.Error()})
}
