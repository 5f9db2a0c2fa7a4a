package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
	"github.com/Abhinavsb985/Smart-Traffic-Control/service"
)

const (
	// formOverheadBytes is allowed on top of the image limit for the other
	// fields and multipart framing.
	formOverheadBytes = 64 << 10
	formMemoryBytes   = 8 << 20
)

// SubmitResponse is returned by the submit endpoint, successful or not.
type SubmitResponse struct {
	Report *models.Report   `json:"report,omitempty"`
	Form   service.FormView `json:"form"`
	Error  string           `json:"error,omitempty"`
}

// GetForm returns the caller's form.
func (h *Handlers) GetForm(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.Forms().For(identity).Snapshot())
}

// OpenForm shows the caller's form.
func (h *Handlers) OpenForm(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	form := h.svc.Forms().For(identity)
	form.Open()
	c.JSON(http.StatusOK, form.Snapshot())
}

// CloseForm hides the caller's form, keeping the draft.
func (h *Handlers) CloseForm(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	form := h.svc.Forms().For(identity)
	if err := form.Close(); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, form.Snapshot())
}

// UpdateDraft applies multipart fields to the draft: "description",
// "image" (file) and "remove_image".
func (h *Handlers) UpdateDraft(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	form := h.svc.Forms().For(identity)
	edit, err := h.readDraftEdit(c)
	if err == nil {
		err = form.Edit(edit)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, form.Snapshot())
}

// SubmitForm submits the caller's draft. A form body, when present, is
// applied to the draft as part of the same submission.
func (h *Handlers) SubmitForm(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	form := h.svc.Forms().For(identity)

	var edit service.DraftEdit
	if strings.HasPrefix(c.ContentType(), "multipart/") || c.ContentType() == "application/x-www-form-urlencoded" {
		var err error
		if edit, err = h.readDraftEdit(c); err != nil {
			c.JSON(statusFor(err), SubmitResponse{Form: form.Snapshot(), Error: err.Error()})
			return
		}
	}

	report, err := form.SubmitWith(c.Request.Context(), identity, edit)
	if err != nil {
		c.JSON(statusFor(err), SubmitResponse{Form: form.Snapshot(), Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, SubmitResponse{Report: report, Form: form.Snapshot()})
}

// readDraftEdit parses the form fields of the request. The body is capped at
// the image limit plus room for the other fields, and an image over the
// limit is refused before it is read into memory.
func (h *Handlers) readDraftEdit(c *gin.Context) (service.DraftEdit, error) {
	var edit service.DraftEdit
	limit := int64(h.svc.Workflow().MaxImageBytes())
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+formOverheadBytes)
	}

	if err := c.Request.ParseMultipartForm(formMemoryBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return edit, tooLarge(limit)
		}
		return edit, &service.ValidationError{Err: fmt.Errorf("invalid form: %w", err)}
	}

	if description, ok := c.GetPostForm("description"); ok {
		edit.Description = &description
	}
	edit.RemoveImage = c.PostForm("remove_image") == "true"

	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return edit, nil
	}
	if err != nil {
		return edit, &service.ValidationError{Err: fmt.Errorf("invalid image upload: %w", err)}
	}
	if limit > 0 && fh.Size > limit {
		return edit, tooLarge(limit)
	}
	f, err := fh.Open()
	if err != nil {
		return edit, &service.ValidationError{Err: fmt.Errorf("invalid image upload: %w", err)}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return edit, &service.ValidationError{Err: fmt.Errorf("failed to read image: %w", err)}
	}
	edit.Image = &service.Attachment{Name: fh.Filename, Data: data}
	return edit, nil
}

func tooLarge(limit int64) error {
	return &service.ValidationError{Err: fmt.Errorf("%w: limit %d bytes", service.ErrAssetTooLarge, limit)}
}
