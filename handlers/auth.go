package handlers

import (
	"errors"
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/Abhinavsb985/Smart-Traffic-Control/auth"
	"github.com/Abhinavsb985/Smart-Traffic-Control/middleware"
	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
	"github.com/Abhinavsb985/Smart-Traffic-Control/service"
)

// Register creates an account.
func (h *Handlers) Register(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Please fill in all fields"})
		return
	}

	identity, err := h.auth.SignUp(c.Request.Context(), req)
	switch {
	case errors.Is(err, auth.ErrUserExists):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, auth.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		log.WithError(err).Error("Sign-up failed")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to create user"})
		return
	}
	c.JSON(http.StatusCreated, identity)
}

// Login issues a token and loads the feed for the new session.
func (h *Handlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Please fill in all fields"})
		return
	}

	token, identity, err := h.auth.SignIn(c.Request.Context(), req)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		log.WithError(err).Error("Sign-in failed")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to sign in"})
		return
	}

	if err := h.svc.Feed().Refresh(c.Request.Context()); err != nil {
		log.WithError(&service.FeedRefreshError{Err: err}).Warn("Feed load on sign-in failed")
	}

	c.JSON(http.StatusOK, models.TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(h.auth.TokenTTL().Seconds()),
		User:      identity,
	})
}

// Logout revokes the current token and discards the user's form.
func (h *Handlers) Logout(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	if err := h.auth.SignOut(c.Request.Context(), c.GetString(middleware.TokenKey)); err != nil {
		log.WithError(err).Error("Sign-out failed")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to sign out"})
		return
	}
	h.svc.Forms().Discard(identity)
	c.JSON(http.StatusOK, models.MessageResponse{Message: "Signed out"})
}

// Me returns the signed-in identity.
func (h *Handlers) Me(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, identity)
}
