package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	dwerrors "github.com/diskwatch/diskwatch/internal/errors"
)

type fakeMailer struct {
	calls    int
	failures int
	err      error
	subjects []string
}

func (m *fakeMailer) Send(ctx context.Context, subject, body string) error {
	m.calls++
	m.subjects = append(m.subjects, subject)
	if m.calls <= m.failures {
		return m.err
	}
	return nil
}

func newDispatcherUnderTest(mailer *fakeMailer) (*Dispatcher, *Tracker) {
	tracker := NewTracker(60 * time.Minute)
	return NewDispatcher(tracker, NewComposer("storage01"), mailer), tracker
}

func TestDispatchSendsAndCommits(t *testing.T) {
	mailer := &fakeMailer{}
	dispatcher, tracker := newDispatcherUnderTest(mailer)
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	attempted, err := dispatcher.Dispatch(context.Background(), criticalAssessment("/dev/sda"), now)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !attempted {
		t.Error("expected a send to be attempted")
	}
	if mailer.calls != 1 {
		t.Errorf("mailer called %d times, want 1", mailer.calls)
	}
	if _, ok := tracker.Record("/dev/sda"); !ok {
		t.Error("successful send must commit the alert record")
	}
}

func TestDispatchSuppressed(t *testing.T) {
	mailer := &fakeMailer{}
	dispatcher, tracker := newDispatcherUnderTest(mailer)
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	tracker.MarkSent(criticalAssessment("/dev/sda"), now)

	attempted, err := dispatcher.Dispatch(context.Background(), criticalAssessment("/dev/sda"), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if attempted {
		t.Error("suppressed alert must not reach the transport")
	}
	if mailer.calls != 0 {
		t.Errorf("mailer called %d times, want 0", mailer.calls)
	}
}

func TestDispatchRetriesTransportErrorOnce(t *testing.T) {
	mailer := &fakeMailer{
		failures: 1,
		err:      dwerrors.WrapTransportError("send", errors.New("connection refused")),
	}
	dispatcher, tracker := newDispatcherUnderTest(mailer)
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	attempted, err := dispatcher.Dispatch(context.Background(), criticalAssessment("/dev/sda"), now)
	if err != nil {
		t.Fatalf("retry should have succeeded: %v", err)
	}
	if !attempted {
		t.Error("expected a send to be attempted")
	}
	if mailer.calls != 2 {
		t.Errorf("mailer called %d times, want 2 (initial + retry)", mailer.calls)
	}
	if _, ok := tracker.Record("/dev/sda"); !ok {
		t.Error("record must be committed after the retry succeeds")
	}
}

func TestDispatchFailureLeavesRecordUncommitted(t *testing.T) {
	mailer := &fakeMailer{
		failures: 2,
		err:      dwerrors.WrapTransportError("send", errors.New("connection refused")),
	}
	dispatcher, tracker := newDispatcherUnderTest(mailer)
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	attempted, err := dispatcher.Dispatch(context.Background(), criticalAssessment("/dev/sda"), now)
	if err == nil {
		t.Fatal("expected transport error to surface after the retry")
	}
	if !attempted {
		t.Error("a failed send still counts as attempted")
	}
	if mailer.calls != 2 {
		t.Errorf("mailer called %d times, want exactly 2", mailer.calls)
	}
	if _, ok := tracker.Record("/dev/sda"); ok {
		t.Error("failed send must not commit the alert record")
	}

	// The next cycle sees no record and alerts again.
	if !tracker.ShouldAlert(criticalAssessment("/dev/sda"), now.Add(time.Minute)) {
		t.Error("device must stay eligible for alerting after a failed send")
	}
}

func TestDispatchNonRetryableErrorNotRetried(t *testing.T) {
	mailer := &fakeMailer{
		failures: 2,
		err:      errors.New("malformed recipient"),
	}
	dispatcher, _ := newDispatcherUnderTest(mailer)
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	if _, err := dispatcher.Dispatch(context.Background(), criticalAssessment("/dev/sda"), now); err == nil {
		t.Fatal("expected error to surface")
	}
	if mailer.calls != 1 {
		t.Errorf("non-retryable error retried: %d calls, want 1", mailer.calls)
	}
}
