package service

import (
	"sync"

	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

// Forms keeps one form per signed-in user.
type Forms struct {
	workflow *Workflow

	mu    sync.Mutex
	forms map[string]*Form
}

// NewForms creates an empty registry backed by workflow.
func NewForms(workflow *Workflow) *Forms {
	return &Forms{workflow: workflow, forms: make(map[string]*Form)}
}

// For returns the form of identity, creating it on first use.
func (r *Forms) For(identity models.Identity) *Form {
	key := formKey(identity)

	r.mu.Lock()
	defer r.mu.Unlock()
	form, ok := r.forms[key]
	if !ok {
		form = r.workflow.NewForm()
		r.forms[key] = form
	}
	return form
}

// Discard drops the form of identity, e.g. on sign-out. A submission that is
// still running completes against the dropped form.
func (r *Forms) Discard(identity models.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.forms, formKey(identity))
}

// Len returns the number of live forms.
func (r *Forms) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forms)
}

func formKey(identity models.Identity) string {
	if identity.UserID != "" {
		return identity.UserID
	}
	return identity.Email
}
