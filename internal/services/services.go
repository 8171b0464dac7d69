// Package services holds the fincontrol business operations. Every method
// takes the authenticated user id and only touches that user's rows.
package services

import (
	"context"
	"fmt"
	"time"

	"fincontrol/internal/amqp"
	"fincontrol/internal/core"
	applog "fincontrol/internal/log"
	"fincontrol/internal/storage"
)

// dashboardTimeout bounds every dashboard read.
const dashboardTimeout = 7 * time.Second

// EventPublisher is satisfied by *amqp.Client. A nil publisher disables events.
type EventPublisher interface {
	Publish(ctx context.Context, e *amqp.Event) error
}

// Clock provides "today" in the configured timezone.
type Clock struct {
	Location *time.Location
	Now      func() time.Time
}

// NewClock returns a clock on the wall time in loc (UTC when nil).
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Location: loc, Now: time.Now}
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c Clock) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Today is the current calendar date in the clock's location.
func (c Clock) Today() core.Date {
	return core.DateOf(c.now().In(c.loc()))
}

// ThisMonth is the month containing Today.
func (c Clock) ThisMonth() core.Month {
	return c.Today().MonthOf()
}

func publish(ctx context.Context, p EventPublisher, logger *applog.Logger, e *amqp.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.WarnContext(ctx, "Failed to publish event",
			applog.FieldEventID, e.ID,
			applog.FieldEventType, e.Type,
			applog.FieldError, err)
	}
}

// checkDestination confirms the account or card belongs to the user.
func checkDestination(ctx context.Context, repo *storage.SQLiteRepository, userID string, d core.Destination) error {
	if d.AccountID != "" {
		if _, err := repo.GetAccount(ctx, userID, d.AccountID); err != nil {
			return fmt.Errorf("account %s: %w", d.AccountID, err)
		}
	}
	if d.CardID != "" {
		if _, err := repo.GetCard(ctx, userID, d.CardID); err != nil {
			return fmt.Errorf("card %s: %w", d.CardID, err)
		}
	}
	return nil
}

// ErrCategoryKind is returned when a category of the wrong kind is used.
var ErrCategoryKind = fmt.Errorf("%w: category kind does not match", core.ErrValidation)

// checkCategory confirms the optional category belongs to the user and has
// the expected kind.
func checkCategory(ctx context.Context, repo *storage.SQLiteRepository, userID, categoryID string, kind core.CategoryKind) error {
	if categoryID == "" {
		return nil
	}
	c, err := repo.GetCategory(ctx, userID, categoryID)
	if err != nil {
		return fmt.Errorf("category %s: %w", categoryID, err)
	}
	if kind != "" && c.Kind != kind {
		return ErrCategoryKind
	}
	return nil
}

func checkOffer(ctx context.Context, repo *storage.SQLiteRepository, userID, offerID string) (core.Offer, error) {
	o, err := repo.GetOffer(ctx, userID, offerID)
	if err != nil {
		return core.Offer{}, fmt.Errorf("offer %s: %w", offerID, err)
	}
	return o, nil
}
