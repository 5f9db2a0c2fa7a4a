package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

var alice = models.Identity{UserID: "u-1", Email: "alice@example.com", Role: models.RoleCasual}

func TestSubmitRejectsBlankDescription(t *testing.T) {
	testCases := []struct {
		name        string
		description string
		attach      bool
	}{
		{name: "empty", description: ""},
		{name: "spaces", description: "   "},
		{name: "whitespace mix", description: "\n\t  \r\n"},
		{name: "blank with image", description: "  ", attach: true},
	}

	for _, tc := range testCases {
		h := newHarness()
		h.form.SetDescription(tc.description)
		if tc.attach {
			h.form.Attach("photo.jpg", []byte("jpeg"))
		}

		report, err := h.form.Submit(context.Background(), alice)

		var verr *ValidationError
		if !errors.As(err, &verr) || !errors.Is(err, ErrEmptyDescription) {
			t.Errorf("%s: expected ValidationError(ErrEmptyDescription), got %v", tc.name, err)
		}
		if report != nil {
			t.Errorf("%s: expected no report, got %+v", tc.name, report)
		}
		if h.uploader.calls() != 0 || h.tables.insertCount() != 0 || h.refresher.count() != 0 {
			t.Errorf("%s: expected no external calls, got upload=%d insert=%d refresh=%d",
				tc.name, h.uploader.calls(), h.tables.insertCount(), h.refresher.count())
		}
		if msg := h.form.Message(); msg == nil || msg.Text != MsgNeedDescription || msg.Kind != MessageError {
			t.Errorf("%s: unexpected message %+v", tc.name, msg)
		}
		if got := h.form.Draft().Description; got != tc.description {
			t.Errorf("%s: draft changed to %q", tc.name, got)
		}
		if h.form.State() != Idle {
			t.Errorf("%s: expected idle, got %s", tc.name, h.form.State())
		}
	}
}

func TestSubmitWithoutSubmitter(t *testing.T) {
	h := newHarness()
	h.form.SetDescription("Broken signal")

	_, err := h.form.Submit(context.Background(), models.Identity{})
	if !errors.Is(err, ErrNoSubmitter) {
		t.Fatalf("expected ErrNoSubmitter, got %v", err)
	}
	if h.tables.insertCount() != 0 {
		t.Errorf("expected no insert")
	}
}

func TestSubmitWithoutImage(t *testing.T) {
	h := newHarness()
	h.form.SetDescription("Waterlogging at junction")

	report, err := h.form.Submit(context.Background(), alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.uploader.calls() != 0 {
		t.Errorf("uploader should not be called without an image, got %d calls", h.uploader.calls())
	}
	if report.ImageURL != "" {
		t.Errorf("expected no image url, got %q", report.ImageURL)
	}
	if v, ok := h.tables.inserts[0]["image_url"]; !ok || v != nil {
		t.Errorf("expected image_url to be written as NULL, got %v", v)
	}
}

func TestSubmitWithImage(t *testing.T) {
	h := newHarness()
	h.form.SetDescription("Pothole on the bypass")
	h.form.Attach("../photos/pothole 1.jpg", []byte("jpeg bytes"))

	report, err := h.form.Submit(context.Background(), alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.uploader.calls() != 1 {
		t.Fatalf("expected exactly one upload, got %d", h.uploader.calls())
	}
	wantName := "1709285400000-pothole-1.jpg"
	if h.uploader.names[0] != wantName {
		t.Errorf("expected upload name %q, got %q", wantName, h.uploader.names[0])
	}
	if string(h.uploader.data[0]) != "jpeg bytes" {
		t.Errorf("unexpected upload payload %q", h.uploader.data[0])
	}
	if report.ImageURL != h.uploader.url {
		t.Errorf("expected image url %q, got %q", h.uploader.url, report.ImageURL)
	}
	if got := h.tables.inserts[0]["image_url"]; got != h.uploader.url {
		t.Errorf("expected stored image_url %q, got %v", h.uploader.url, got)
	}
}

func TestSubmitScenario(t *testing.T) {
	h := newHarness()
	h.form.Open()
	h.form.SetDescription("  Pothole near bus stand \n")

	report, err := h.form.Submit(context.Background(), alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inserted := h.tables.inserts[0]
	if inserted["description"] != "Pothole near bus stand" {
		t.Errorf("description not trimmed: %q", inserted["description"])
	}
	if inserted["location"] != "Kottakkal, Kerala (10.5276, 76.2144)" {
		t.Errorf("unexpected location %q", inserted["location"])
	}
	if lat, ok := inserted["latitude"].(decimal.Decimal); !ok || !lat.Equal(decimal.RequireFromString("10.5276")) {
		t.Errorf("unexpected latitude %v", inserted["latitude"])
	}
	if lng, ok := inserted["longitude"].(decimal.Decimal); !ok || !lng.Equal(decimal.RequireFromString("76.2144")) {
		t.Errorf("unexpected longitude %v", inserted["longitude"])
	}
	if inserted["user_email"] != "alice@example.com" {
		t.Errorf("unexpected user_email %v", inserted["user_email"])
	}

	feed := h.feed.Reports()
	if len(feed) != 1 || feed[0].ID != report.ID {
		t.Fatalf("expected new report at the head of the feed, got %+v", feed)
	}
	if feed[0].Latitude != 10.5276 || feed[0].Longitude != 76.2144 {
		t.Errorf("unexpected coordinates %v,%v", feed[0].Latitude, feed[0].Longitude)
	}

	view := h.form.Snapshot()
	if view.Outcome != OutcomeSuccess || view.Open || view.Description != "" || view.ImageName != "" {
		t.Errorf("expected cleared, closed form after success, got %+v", view)
	}
	if view.Message == nil || view.Message.Text != MsgSubmitted || !view.Message.Transient {
		t.Fatalf("expected transient success message, got %+v", view.Message)
	}

	h.clock.Advance(2 * time.Second)
	if h.form.Message() == nil {
		t.Errorf("success message cleared too early")
	}
	h.clock.Advance(time.Second)
	if msg := h.form.Message(); msg != nil {
		t.Errorf("expected message cleared after 3s, got %+v", msg)
	}
}

func TestSubmitUploadFailure(t *testing.T) {
	h := newHarness()
	h.uploader.err = errors.New("bucket unavailable")
	h.form.SetDescription("Fallen tree")
	h.form.Attach("tree.png", []byte("png"))

	_, err := h.form.Submit(context.Background(), alice)

	var uerr *UploadError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UploadError, got %v", err)
	}
	if h.tables.insertCount() != 0 {
		t.Errorf("store must not be called after a failed upload")
	}
	if h.refresher.count() != 0 {
		t.Errorf("feed must not be refreshed after a failed upload")
	}
	draft := h.form.Draft()
	if draft.Description != "Fallen tree" || draft.Image == nil || draft.Image.Name != "tree.png" {
		t.Errorf("draft not preserved: %+v", draft)
	}

	h.clock.Advance(time.Minute)
	msg := h.form.Message()
	if msg == nil || msg.Text != MsgUploadFailed || msg.Transient {
		t.Errorf("expected persistent upload failure message, got %+v", msg)
	}
}

func TestSubmitStoreFailure(t *testing.T) {
	h := newHarness()
	h.tables.insertErr = errors.New("permission denied for table reports")
	h.form.SetDescription("Missing manhole cover")

	_, err := h.form.Submit(context.Background(), alice)

	var serr *StoreError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("expected store cause in error, got %v", err)
	}
	if h.refresher.count() != 0 {
		t.Errorf("feed must not be refreshed after a failed write")
	}
	if got := h.form.Draft().Description; got != "Missing manhole cover" {
		t.Errorf("draft not preserved: %q", got)
	}
	if msg := h.form.Message(); msg == nil || msg.Text != MsgStoreFailed {
		t.Errorf("unexpected message %+v", msg)
	}
	if len(h.publisher.events) != 0 {
		t.Errorf("no event expected for a failed write")
	}
}

func TestSubmitFeedRefreshFailureIsNotFatal(t *testing.T) {
	h := newHarness()
	h.refresher.err = errors.New("read timeout")
	h.form.SetDescription("Streetlight out")

	report, err := h.form.Submit(context.Background(), alice)
	if err != nil {
		t.Fatalf("refresh failure must not fail the submission: %v", err)
	}
	if report == nil || report.ID == "" {
		t.Fatalf("expected stored report, got %+v", report)
	}
	if h.feed.Count() != 0 {
		t.Errorf("expected stale feed, got %d reports", h.feed.Count())
	}
	if msg := h.form.Message(); msg == nil || msg.Kind != MessageSuccess {
		t.Errorf("expected success message, got %+v", msg)
	}
}

func TestSubmitWhileInFlight(t *testing.T) {
	h := newHarness()
	h.uploader.entered = make(chan struct{})
	h.uploader.release = make(chan struct{})
	h.form.SetDescription("Oil spill")
	h.form.Attach("spill.jpg", []byte("jpeg"))

	done := make(chan error, 1)
	go func() {
		_, err := h.form.Submit(context.Background(), alice)
		done <- err
	}()
	<-h.uploader.entered

	if h.form.State() != UploadingAsset {
		t.Errorf("expected uploading_asset, got %s", h.form.State())
	}
	if h.form.CanSubmit() {
		t.Errorf("submit must be disabled while in flight")
	}
	if _, err := h.form.Submit(context.Background(), alice); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("expected ErrSubmissionInFlight, got %v", err)
	}
	if err := h.form.SetDescription("changed"); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("expected draft edits to be rejected, got %v", err)
	}

	close(h.uploader.release)
	if err := <-done; err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	if h.uploader.calls() != 1 || h.tables.insertCount() != 1 {
		t.Errorf("expected exactly one upload and insert, got %d and %d", h.uploader.calls(), h.tables.insertCount())
	}
}

func TestFailureCancelsPendingSuccessClear(t *testing.T) {
	h := newHarness()
	h.form.SetDescription("First report")
	if _, err := h.form.Submit(context.Background(), alice); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h.clock.Advance(time.Second)
	h.tables.insertErr = errors.New("connection reset")
	h.form.SetDescription("Second report")
	if _, err := h.form.Submit(context.Background(), alice); err == nil {
		t.Fatalf("expected failure")
	}

	h.clock.Advance(5 * time.Second)
	if msg := h.form.Message(); msg == nil || msg.Text != MsgStoreFailed {
		t.Errorf("error message must survive the earlier success timer, got %+v", msg)
	}
}

func TestSubmitClearsPreviousMessage(t *testing.T) {
	h := newHarness()
	h.form.Submit(context.Background(), alice)
	if h.form.Message() == nil {
		t.Fatalf("expected validation message")
	}

	h.form.SetDescription("Now with text")
	if _, err := h.form.Submit(context.Background(), alice); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg := h.form.Message(); msg == nil || msg.Text != MsgSubmitted {
		t.Errorf("expected success message, got %+v", msg)
	}
}

func TestSubmitPublishesEvent(t *testing.T) {
	h := newHarness()
	h.publisher.err = errors.New("channel closed")
	h.form.SetDescription("Speed breaker unmarked")

	report, err := h.form.Submit(context.Background(), alice)
	if err != nil {
		t.Fatalf("publish failure must not fail the submission: %v", err)
	}
	if len(h.publisher.events) != 1 {
		t.Fatalf("expected one event, got %d", len(h.publisher.events))
	}
	event, ok := h.publisher.events[0].(models.ReportCreatedEvent)
	if !ok {
		t.Fatalf("unexpected event type %T", h.publisher.events[0])
	}
	if event.ID != report.ID || event.UserEmail != "alice@example.com" {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestCanSubmit(t *testing.T) {
	h := newHarness()
	if h.form.CanSubmit() {
		t.Errorf("empty draft must not be submittable")
	}
	h.form.SetDescription("   ")
	if h.form.CanSubmit() {
		t.Errorf("blank draft must not be submittable")
	}
	h.form.SetDescription("x")
	if !h.form.CanSubmit() {
		t.Errorf("non-blank draft should be submittable")
	}
}

func TestFormOpenClose(t *testing.T) {
	h := newHarness()
	h.form.Open()
	if !h.form.Snapshot().Open {
		t.Errorf("expected open form")
	}
	h.form.SetDescription("kept")
	if err := h.form.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view := h.form.Snapshot()
	if view.Open || view.Description != "kept" {
		t.Errorf("closing must keep the draft, got %+v", view)
	}
	if err := h.form.Detach(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStateString(t *testing.T) {
	testCases := map[State]string{
		Idle:           "idle",
		Validating:     "validating",
		UploadingAsset: "uploading_asset",
		Persisting:     "persisting",
		RefreshingFeed: "refreshing_feed",
		State(42):      "unknown",
	}
	for state, want := range testCases {
		if got := state.String(); got != want {
			t.Errorf("State(%d): expected %q, got %q", int(state), want, got)
		}
	}
}

func TestAttachRejectsOversizedImage(t *testing.T) {
	h := newHarness()
	h.workflow.deps.MaxImageBytes = 8
	form := h.workflow.NewForm()
	form.Attach("small.jpg", []byte("jpeg"))

	err := form.Attach("huge.jpg", []byte(strings.Repeat("x", 9)))

	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrAssetTooLarge) {
		t.Fatalf("expected ValidationError(ErrAssetTooLarge), got %v", err)
	}
	if img := form.Draft().Image; img == nil || img.Name != "small.jpg" {
		t.Errorf("rejected image must not replace the draft image, got %+v", img)
	}
	if err := form.Attach("exact.jpg", []byte(strings.Repeat("x", 8))); err != nil {
		t.Errorf("image at the limit must be accepted, got %v", err)
	}
}

func TestSubmitWithAppliesEditAtomically(t *testing.T) {
	h := newHarness()
	h.uploader.entered = make(chan struct{})
	h.uploader.release = make(chan struct{})
	h.form.SetDescription("stale text")

	description := "Culvert collapsed near the canal"
	done := make(chan error, 1)
	go func() {
		_, err := h.form.SubmitWith(context.Background(), alice, DraftEdit{
			Description: &description,
			Image:       &Attachment{Name: "culvert.jpg", Data: []byte("jpeg")},
		})
		done <- err
	}()
	<-h.uploader.entered

	if err := h.form.SetDescription("sneaky edit"); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("expected concurrent edit to be rejected, got %v", err)
	}
	close(h.uploader.release)
	if err := <-done; err != nil {
		t.Fatalf("SubmitWith: %v", err)
	}

	reports, err := NewReportStore(h.tables, "reports").ListAll(context.Background())
	if err != nil || len(reports) != 1 {
		t.Fatalf("expected one stored report, got %d (%v)", len(reports), err)
	}
	if reports[0].Description != description {
		t.Errorf("expected submitted description %q, got %q", description, reports[0].Description)
	}
}

func TestSubmitWithRejectedEditKeepsForm(t *testing.T) {
	h := newHarness()
	h.workflow.deps.MaxImageBytes = 4
	form := h.workflow.NewForm()
	form.SetDescription("Pothole")

	description := "replaced"
	_, err := form.SubmitWith(context.Background(), alice, DraftEdit{
		Description: &description,
		Image:       &Attachment{Name: "big.jpg", Data: []byte("too big")},
	})
	if !errors.Is(err, ErrAssetTooLarge) {
		t.Fatalf("expected ErrAssetTooLarge, got %v", err)
	}
	if form.State() != Idle || form.Draft().Description != "Pothole" || form.Draft().Image != nil {
		t.Errorf("rejected edit must leave the form unchanged, got %s %+v", form.State(), form.Draft())
	}
	if h.uploader.calls() != 0 || h.tables.insertCount() != 0 {
		t.Errorf("expected no external calls")
	}
}
