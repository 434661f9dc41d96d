package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	dwerrors "github.com/diskwatch/diskwatch/internal/errors"
	"github.com/diskwatch/diskwatch/internal/models"
	"github.com/diskwatch/diskwatch/internal/notify"
)

// Dispatcher applies the dedup policy and pushes alerts through the mail
// transport. A transport failure is retried exactly once within the cycle,
// then surfaced to the caller; the alert record is committed only after a
// successful send.
type Dispatcher struct {
	tracker  *Tracker
	composer *Composer
	mailer   notify.Mailer
}

// NewDispatcher wires the tracker, composer, and mail transport together.
func NewDispatcher(tracker *Tracker, composer *Composer, mailer notify.Mailer) *Dispatcher {
	return &Dispatcher{
		tracker:  tracker,
		composer: composer,
		mailer:   mailer,
	}
}

// Dispatch evaluates one assessment and sends an alert if the policy says
// so. Returns whether a send was attempted and any transport error.
func (d *Dispatcher) Dispatch(ctx context.Context, assessment models.Assessment, now time.Time) (attempted bool, err error) {
	if !d.tracker.ShouldAlert(assessment, now) {
		log.Debug().
			Str("device", assessment.Device).
			Str("severity", assessment.Severity.String()).
			Msg("Alert suppressed by dedup policy")
		return false, nil
	}

	subject, body := d.composer.Compose(assessment)

	err = d.mailer.Send(ctx, subject, body)
	if err != nil && dwerrors.IsRetryableError(err) {
		log.Warn().
			Err(err).
			Str("device", assessment.Device).
			Msg("Mail send failed, retrying once")
		err = d.mailer.Send(ctx, subject, body)
	}
	if err != nil {
		return true, err
	}

	d.tracker.MarkSent(assessment, now)
	log.Info().
		Str("device", assessment.Device).
		Str("severity", assessment.Severity.String()).
		Msg("Alert sent")
	return true, nil
}
