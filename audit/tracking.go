package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vey.dev/pidcore/errs"
)

const (
	TrackingAccepted       = "accepted"
	TrackingInTransit      = "in_transit"
	TrackingOutForDelivery = "out_for_delivery"
	TrackingDelivered      = "delivered"
	TrackingFailed         = "failed"
)

// Location is coarse on purpose: a tracking event never carries a street.
type Location struct {
	Country string `json:"country"`
	Admin1  string `json:"admin1,omitempty"`
	City    string `json:"city,omitempty"`
}

type TrackingEvent struct {
	ID             string    `json:"id"`
	TrackingNumber string    `json:"trackingNumber"`
	Type           string    `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	Location       *Location `json:"location,omitempty"`
	Description    string    `json:"description"`
	Carrier        string    `json:"carrier,omitempty"`
}

// NewTrackingEvent validates the event type and stamps the event now.
func NewTrackingEvent(trackingNumber, eventType, description string, loc *Location) (TrackingEvent, error) {
	ev := TrackingEvent{
		ID:             uuid.NewString(),
		TrackingNumber: trackingNumber,
		Type:           eventType,
		Timestamp:      time.Now().UTC(),
		Location:       loc,
		Description:    description,
	}
	if err := checkTracking(ev); err != nil {
		return TrackingEvent{}, err
	}
	return ev, nil
}

func checkTracking(ev TrackingEvent) error {
	if ev.TrackingNumber == "" {
		return errs.New(errs.Parse, "AUD-TRK-001", "tracking number is required")
	}
	switch ev.Type {
	case TrackingAccepted, TrackingInTransit, TrackingOutForDelivery, TrackingDelivered, TrackingFailed:
		return nil
	}
	return errs.New(errs.Parse, "AUD-TRK-002", "unknown tracking event type "+ev.Type)
}

// TrackingSink persists or forwards tracking events.
type TrackingSink interface {
	AppendTracking(ctx context.Context, ev TrackingEvent) error
}
