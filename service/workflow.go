package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/Abhinavsb985/Smart-Traffic-Control/metrics"
	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

// DefaultDismissAfter is how long a success message stays visible.
const DefaultDismissAfter = 3 * time.Second

// User-visible messages. Failure messages name the stage that failed.
const (
	MsgSubmitted       = "Report submitted successfully and saved to database!"
	MsgNeedDescription = "Please provide a description"
	MsgNeedSignIn      = "Please sign in to submit a report"
	MsgUploadFailed    = "Failed to upload image. Your report was not saved, please try again."
	MsgStoreFailed     = "Failed to save report. Please try again."
)

// State is a submission stage. Any state other than Idle means a submission
// is in flight.
type State int

const (
	Idle State = iota
	Validating
	UploadingAsset
	Persisting
	RefreshingFeed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case UploadingAsset:
		return "uploading_asset"
	case Persisting:
		return "persisting"
	case RefreshingFeed:
		return "refreshing_feed"
	}
	return "unknown"
}

// Outcome is the result of the last finished submission.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Attachment is an image chosen for the draft but not uploaded yet.
type Attachment struct {
	Name string
	Data []byte
}

// Draft is the unsaved content of a form.
type Draft struct {
	Description string
	Image       *Attachment
}

// DraftEdit is a set of changes to a draft. Nil fields are left unchanged;
// RemoveImage is applied before Image.
type DraftEdit struct {
	Description *string
	Image       *Attachment
	RemoveImage bool
}

// Dependencies are the collaborators shared by every form.
type Dependencies struct {
	Uploader      Uploader
	Store         ReportCreator
	Feed          Refresher
	Publisher     EventPublisher // optional
	Clock         Clock          // SystemClock when nil
	Location      models.Location
	DismissAfter  time.Duration // DefaultDismissAfter when zero
	MaxImageBytes int           // largest draft image accepted, no limit when zero
}

// Workflow turns drafts into persisted reports.
type Workflow struct {
	deps Dependencies
}

// NewWorkflow creates a workflow with deps, filling in defaults.
func NewWorkflow(deps Dependencies) *Workflow {
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	if deps.DismissAfter <= 0 {
		deps.DismissAfter = DefaultDismissAfter
	}
	return &Workflow{deps: deps}
}

// Location returns the location every report is filed against.
func (w *Workflow) Location() models.Location {
	return w.deps.Location
}

// MaxImageBytes returns the largest draft image accepted, zero for no limit.
func (w *Workflow) MaxImageBytes() int {
	return w.deps.MaxImageBytes
}

// NewForm creates an idle, closed form with an empty draft.
func (w *Workflow) NewForm() *Form {
	return &Form{w: w, notice: NewNotice(w.deps.Clock)}
}

// Form is one user's report form. At most one submission per form is in
// flight; the draft cannot change while it is.
type Form struct {
	w      *Workflow
	notice *Notice

	mu      sync.Mutex
	state   State
	outcome Outcome
	draft   Draft
	open    bool
}

// FormView is a point-in-time copy of a form for rendering.
type FormView struct {
	State       string   `json:"state"`
	Outcome     Outcome  `json:"outcome,omitempty"`
	Open        bool     `json:"open"`
	Description string   `json:"description"`
	ImageName   string   `json:"image_name,omitempty"`
	ImageSize   int      `json:"image_size,omitempty"`
	Location    string   `json:"location"`
	CanSubmit   bool     `json:"can_submit"`
	Message     *Message `json:"message,omitempty"`
}

// Snapshot returns the current form state.
func (f *Form) Snapshot() FormView {
	f.mu.Lock()
	defer f.mu.Unlock()

	view := FormView{
		State:       f.state.String(),
		Outcome:     f.outcome,
		Open:        f.open,
		Description: f.draft.Description,
		Location:    f.w.deps.Location.String(),
		CanSubmit:   f.canSubmit(),
		Message:     f.notice.Current(),
	}
	if f.draft.Image != nil {
		view.ImageName = f.draft.Image.Name
		view.ImageSize = len(f.draft.Image.Data)
	}
	return view
}

// State returns the current submission stage.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Draft returns a copy of the unsaved content.
func (f *Form) Draft() Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// Message returns the visible status message, nil when there is none.
func (f *Form) Message() *Message {
	return f.notice.Current()
}

// CanSubmit reports whether the submit control should be enabled.
func (f *Form) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canSubmit()
}

func (f *Form) canSubmit() bool {
	return f.state == Idle && strings.TrimSpace(f.draft.Description) != ""
}

// Open shows the form.
func (f *Form) Open() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
}

// Close hides the form. The draft is kept.
func (f *Form) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Idle {
		return ErrSubmissionInFlight
	}
	f.open = false
	return nil
}

// SetDescription replaces the draft description.
func (f *Form) SetDescription(description string) error {
	return f.Edit(DraftEdit{Description: &description})
}

// Attach sets the draft image, replacing any previous one.
func (f *Form) Attach(name string, data []byte) error {
	return f.Edit(DraftEdit{Image: &Attachment{Name: name, Data: data}})
}

// Detach removes the draft image.
func (f *Form) Detach() error {
	return f.Edit(DraftEdit{RemoveImage: true})
}

// Edit applies edit to the draft. Nothing is changed when it fails.
func (f *Form) Edit(edit DraftEdit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Idle {
		return ErrSubmissionInFlight
	}
	return f.applyLocked(edit)
}

func (f *Form) applyLocked(edit DraftEdit) error {
	if img := edit.Image; img != nil {
		if limit := f.w.deps.MaxImageBytes; limit > 0 && len(img.Data) > limit {
			return &ValidationError{Err: fmt.Errorf("%w: %d bytes, limit %d", ErrAssetTooLarge, len(img.Data), limit)}
		}
	}
	if edit.Description != nil {
		f.draft.Description = *edit.Description
	}
	if edit.RemoveImage {
		f.draft.Image = nil
	}
	if edit.Image != nil {
		f.draft.Image = edit.Image
	}
	return nil
}

// Submit runs the draft through validation, upload, persistence and feed
// refresh on behalf of identity. It returns the stored report on success.
//
// On a validation, upload or store failure the draft is kept, a persistent
// error message is shown and the typed error is returned. A failed feed
// refresh after a successful write is logged and does not fail the call.
func (f *Form) Submit(ctx context.Context, identity models.Identity) (*models.Report, error) {
	return f.SubmitWith(ctx, identity, DraftEdit{})
}

// SubmitWith applies edit to the draft and submits it in one step, so no
// concurrent edit can land in between. A rejected edit leaves the form idle
// and unchanged.
func (f *Form) SubmitWith(ctx context.Context, identity models.Identity, edit DraftEdit) (*models.Report, error) {
	f.mu.Lock()
	if f.state != Idle {
		f.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if err := f.applyLocked(edit); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.state = Validating
	draft := f.draft
	f.mu.Unlock()
	f.notice.Clear()

	deps := f.w.deps
	logger := log.WithField("submitter", identity.Submitter())

	if strings.TrimSpace(draft.Description) == "" {
		return nil, f.fail(&ValidationError{Err: ErrEmptyDescription}, MsgNeedDescription, "validation_failed")
	}
	if identity.Submitter() == "" {
		return nil, f.fail(&ValidationError{Err: ErrNoSubmitter}, MsgNeedSignIn, "validation_failed")
	}

	var imageURL string
	if draft.Image != nil {
		f.transition(UploadingAsset)
		name := TimestampedName(deps.Clock.Now(), draft.Image.Name)
		url, err := deps.Uploader.Upload(ctx, draft.Image.Data, name)
		if err != nil {
			var uerr *UploadError
			if !errors.As(err, &uerr) {
				uerr = &UploadError{Key: name, Err: err}
			}
			return nil, f.fail(uerr, MsgUploadFailed, "upload_failed")
		}
		imageURL = url
	}

	f.transition(Persisting)
	report, err := deps.Store.Create(ctx, models.ReportDraft{
		Description: draft.Description,
		ImageURL:    imageURL,
		Location:    deps.Location,
		SubmittedBy: identity.Submitter(),
	})
	if err != nil {
		var serr *StoreError
		if !errors.As(err, &serr) {
			serr = &StoreError{Op: "create", Err: err}
		}
		return nil, f.fail(serr, MsgStoreFailed, "store_failed")
	}
	logger.WithField("report_id", report.ID).Info("Report saved")
	f.w.publish(report)

	f.transition(RefreshingFeed)
	if err := deps.Feed.Refresh(ctx); err != nil {
		logger.WithError(&FeedRefreshError{Err: err}).Warn("Report saved but feed is stale")
	}

	f.succeed()
	metrics.SubmissionsTotal.WithLabelValues("success").Inc()
	return report, nil
}

func (f *Form) transition(s State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *Form) fail(err error, text, result string) error {
	f.mu.Lock()
	f.state = Idle
	f.outcome = OutcomeFailed
	f.mu.Unlock()

	f.notice.Set(Message{Text: text, Kind: MessageError})
	metrics.SubmissionsTotal.WithLabelValues(result).Inc()
	log.WithError(err).Warn("Report submission failed")
	return err
}

func (f *Form) succeed() {
	f.mu.Lock()
	f.state = Idle
	f.outcome = OutcomeSuccess
	f.draft = Draft{}
	f.open = false
	f.mu.Unlock()

	f.notice.Flash(Message{Text: MsgSubmitted, Kind: MessageSuccess}, f.w.deps.DismissAfter)
}

func (w *Workflow) publish(report *models.Report) {
	if w.deps.Publisher == nil {
		log.Warn("Event publisher not configured, report.created not sent")
		return
	}
	event := models.ReportCreatedEvent{
		ID:          report.ID,
		Timestamp:   report.CreatedAt.Format(time.RFC3339Nano),
		Description: report.Description,
		ImageURL:    report.ImageURL,
		Latitude:    report.Latitude,
		Longitude:   report.Longitude,
		UserEmail:   report.UserEmail,
	}
	if err := w.deps.Publisher.Publish(event); err != nil {
		metrics.EventPublishErrorsTotal.Inc()
		log.WithError(err).WithField("report_id", report.ID).Warn("Failed to publish report.created")
	}
}
