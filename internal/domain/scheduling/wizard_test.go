package scheduling_test

import (
	"testing"
	"time"

	"coachhub/internal/domain/scheduling"
)

// filled returns a wizard on the review step with valid input.
func filled(t *testing.T) *scheduling.Wizard {
	t.Helper()
	w := scheduling.New(time.UTC)
	w.SetCoach("coach-1")
	if err := w.Next(); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	w.SetEntrepreneur("ent-1")
	if err := w.Next(); err != nil {
		t.Fatalf("step 2: %v", err)
	}
	w.SetSchedule("2024-06-10T10:00", 60)
	w.SetDetails("Room 4", "https://meet.example.com/abc", "Pitch review")
	if err := w.Next(); err != nil {
		t.Fatalf("step 3: %v", err)
	}
	return w
}

func TestWizard_Guards(t *testing.T) {
	w := scheduling.New(time.UTC)
	if w.Step() != scheduling.StepSelectCoach {
		t.Fatalf("initial step = %d", w.Step())
	}
	if err := w.Next(); err != scheduling.ErrNoCoach {
		t.Errorf("Next() without coach = %v", err)
	}
	if _, ok := w.FieldErrors()[scheduling.FieldCoach]; !ok {
		t.Error("expected coach field error")
	}
	w.SetCoach("coach-1")
	if _, ok := w.FieldErrors()[scheduling.FieldCoach]; ok {
		t.Error("selecting a coach should clear its error")
	}
	if err := w.Next(); err != nil {
		t.Fatalf("Next() = %v", err)
	}
	if err := w.Next(); err != scheduling.ErrNoEntrepreneur {
		t.Errorf("Next() without entrepreneur = %v", err)
	}
	w.SetEntrepreneur("ent-1")
	if err := w.Next(); err != nil {
		t.Fatalf("Next() = %v", err)
	}

	if err := w.Next(); err != scheduling.ErrNoScheduledTime {
		t.Errorf("Next() without time = %v", err)
	}
	w.SetSchedule("tomorrow-ish", 60)
	if err := w.Next(); err != scheduling.ErrBadScheduledTime {
		t.Errorf("Next() with bad time = %v", err)
	}
	w.SetSchedule("2024-06-10T10:00", 600)
	if err := w.Next(); err != scheduling.ErrInvalidDuration {
		t.Errorf("Next() with long duration = %v", err)
	}
	w.SetSchedule("2024-06-10T10:00", 45)
	w.SetDetails("", "ftp://x", "")
	if err := w.Next(); err != scheduling.ErrInvalidMeetingURL {
		t.Errorf("Next() with ftp link = %v", err)
	}
	w.SetDetails("", "https://meet.example.com/abc", "")
	if err := w.Next(); err != nil {
		t.Fatalf("Next() = %v", err)
	}
	if w.Step() != scheduling.StepReviewConfirm {
		t.Fatalf("step = %d, want review", w.Step())
	}
	if err := w.Next(); err != scheduling.ErrAlreadyReviewing {
		t.Errorf("Next() on review = %v", err)
	}
}

func TestWizard_Back(t *testing.T) {
	w := filled(t)
	for want := scheduling.StepScheduleDetails; want >= scheduling.StepSelectCoach; want-- {
		if !w.Back() {
			t.Fatalf("Back() refused before step 1")
		}
		if w.Step() != want {
			t.Fatalf("step = %d, want %d", w.Step(), want)
		}
	}
	if w.Back() {
		t.Error("Back() on step 1 should return false")
	}
	if w.Draft().CoachID != "coach-1" {
		t.Error("Back() must keep the draft")
	}
}

func TestValidateMeetingURL(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"", scheduling.ErrNoMeetingURL},
		{"   ", scheduling.ErrNoMeetingURL},
		{"ftp://x", scheduling.ErrInvalidMeetingURL},
		{"meet.example.com/abc", scheduling.ErrInvalidMeetingURL},
		{"https://", scheduling.ErrInvalidMeetingURL},
		{"https://meet.example.com/abc", nil},
		{"http://localhost:8080/room", nil},
	}
	for _, tt := range tests {
		if got := scheduling.ValidateMeetingURL(tt.in); got != tt.want {
			t.Errorf("ValidateMeetingURL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWizard_CanSubmit(t *testing.T) {
	w := filled(t)
	slot := w.Slot()

	tests := []struct {
		name string
		a    scheduling.Availability
		want error
	}{
		{"clear", scheduling.Availability{Slot: slot}, nil},
		{"local conflict", scheduling.Availability{Slot: slot, LocalConflict: true}, scheduling.ErrConflictDetected},
		{"remote conflict", scheduling.Availability{Slot: slot, RemoteConflict: true}, scheduling.ErrConflictDetected},
		{"checking", scheduling.Availability{Slot: slot, Checking: true}, scheduling.ErrConflictChecking},
		{"other coach", scheduling.Availability{Slot: scheduling.Slot{CoachID: "coach-2", Start: slot.Start, Duration: slot.Duration}}, scheduling.ErrStaleConflictInfo},
		{"other duration", scheduling.Availability{Slot: scheduling.Slot{CoachID: slot.CoachID, Start: slot.Start, Duration: 90}}, scheduling.ErrStaleConflictInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.CanSubmit(tt.a); got != tt.want {
				t.Errorf("CanSubmit() = %v, want %v", got, tt.want)
			}
		})
	}

	w.Back()
	if err := w.CanSubmit(scheduling.Availability{Slot: slot}); err != scheduling.ErrNotReviewing {
		t.Errorf("CanSubmit() off review = %v", err)
	}
}

func TestWizard_EditOnReviewInvalidatesCheck(t *testing.T) {
	w := filled(t)
	checked := w.Slot()
	w.SetSchedule("2024-06-10T11:00", 60)
	if w.Step() != scheduling.StepReviewConfirm {
		t.Fatal("editing on review should keep the step")
	}
	if w.Slot().Equal(checked) {
		t.Fatal("slot should change with the time")
	}
	if err := w.CanSubmit(scheduling.Availability{Slot: checked}); err != scheduling.ErrStaleConflictInfo {
		t.Errorf("CanSubmit() = %v, want stale", err)
	}
	w.SetDetails("", "", "")
	if err := w.CanSubmit(scheduling.Availability{Slot: w.Slot()}); err != scheduling.ErrNoMeetingURL {
		t.Errorf("CanSubmit() with cleared link = %v", err)
	}
}

func TestWizard_Payload(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	w := scheduling.New(loc)
	w.Apply(scheduling.Draft{
		CoachID:            "coach-1",
		EntrepreneurID:     "ent-1",
		ScheduledAt:        "2024-06-10T10:00",
		Duration:           90,
		VideoConferenceURL: "https://meet.example.com/abc",
	})
	req, err := w.Payload("mgr-1")
	if err != nil {
		t.Fatalf("Payload() error: %v", err)
	}
	wantStart := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	if !req.ScheduledAt.Equal(wantStart) || req.ScheduledAt.Location() != time.UTC {
		t.Errorf("scheduledAt = %v, want %v", req.ScheduledAt, wantStart)
	}
	if !req.EndTime.Equal(wantStart.Add(90 * time.Minute)) {
		t.Errorf("endTime = %v", req.EndTime)
	}
	if req.ManagerID != "mgr-1" || req.Duration != 90 || req.CoachID != "coach-1" {
		t.Errorf("payload = %+v", req)
	}
}

func TestWizard_ApplyServerErrors(t *testing.T) {
	w := filled(t)
	if w.ApplyServerErrors([]scheduling.FieldError{{Field: "unknown", Message: "?"}}) {
		t.Error("unrecognised fields should not move the wizard")
	}
	if w.Step() != scheduling.StepReviewConfirm {
		t.Fatalf("step = %d", w.Step())
	}

	moved := w.ApplyServerErrors([]scheduling.FieldError{
		{Field: scheduling.FieldMeetingURL, Message: "unreachable"},
		{Field: scheduling.FieldScheduledAt, Message: "in the past"},
	})
	if !moved || w.Step() != scheduling.StepScheduleDetails {
		t.Fatalf("moved=%v step=%d, want step 3", moved, w.Step())
	}
	errs := w.FieldErrors()
	if errs[scheduling.FieldScheduledAt] != "in the past" || errs[scheduling.FieldMeetingURL] != "unreachable" {
		t.Errorf("field errors = %v", errs)
	}

	w.ApplyServerErrors([]scheduling.FieldError{{Field: scheduling.FieldCoach, Message: "inactive"}})
	if w.Step() != scheduling.StepSelectCoach {
		t.Errorf("coach error should return to step 1, got %d", w.Step())
	}
}

func TestWizard_Reset(t *testing.T) {
	w := filled(t)
	w.ApplyServerErrors([]scheduling.FieldError{{Field: scheduling.FieldCoach, Message: "x"}})
	w.Reset()
	if w.Step() != scheduling.StepSelectCoach || w.Draft().CoachID != "" || len(w.FieldErrors()) != 0 {
		t.Errorf("Reset() left state: step=%d draft=%+v", w.Step(), w.Draft())
	}
	if w.Draft().Duration != scheduling.DefaultDuration {
		t.Errorf("duration = %d, want default", w.Draft().Duration)
	}
}

func TestParseScheduledAt(t *testing.T) {
	got, err := scheduling.ParseScheduledAt("2024-06-10T10:00:00Z", nil)
	if err != nil || !got.Equal(time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("RFC3339 parse = %v, %v", got, err)
	}
	if _, err := scheduling.ParseScheduledAt("", nil); err != scheduling.ErrNoScheduledTime {
		t.Errorf("empty = %v", err)
	}
}
