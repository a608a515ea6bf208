// Package notify delivers change notifications for published records to
// webhooks and Redis channels.
package notify

import (
	"context"
	"errors"
	"time"
)

// Notification tells subscribers that a record on their channels changed
type Notification struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Origin        string    `json:"origin,omitempty"`
	PushChannels  []string  `json:"pushchannels"`
	ImagesChanged bool      `json:"imageschanged"`
	Deleted       bool      `json:"deleted"`
	Time          time.Time `json:"timestamp"`
}

// Notifier delivers notifications
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to several notifiers. Nil entries are
// skipped; all notifiers are tried and their errors joined.
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if nt == nil {
			continue
		}
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
