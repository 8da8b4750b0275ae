package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	rsvpAdmissionCounter     metric.Int64Counter
	waitlistPromotionCounter metric.Int64Counter
)

// InitSchedulerMetrics initializes scheduling engine metrics
func InitSchedulerMetrics() error {
	meter := otel.Meter("skatespot.scheduler")

	var err error

	rsvpAdmissionCounter, err = meter.Int64Counter(
		"scheduler.rsvp.admissions",
		metric.WithDescription("Number of RSVP admission decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return err
	}

	waitlistPromotionCounter, err = meter.Int64Counter(
		"scheduler.waitlist.promotions",
		metric.WithDescription("Number of waitlisted RSVPs promoted to going"),
		metric.WithUnit("{promotion}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// CountRSVPAdmission records one admission decision. No-op before Init.
func CountRSVPAdmission(ctx context.Context, response string, admitted bool) {
	if rsvpAdmissionCounter == nil {
		return
	}
	rsvpAdmissionCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("response", response),
			attribute.Bool("admitted", admitted),
		))
}

// CountWaitlistPromotion records one successful promotion. No-op before Init.
func CountWaitlistPromotion(ctx context.Context) {
	if waitlistPromotionCounter == nil {
		return
	}
	waitlistPromotionCounter.Add(ctx, 1)
}
