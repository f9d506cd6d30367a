package functions

import (
	"context"
	"errors"
	"time"
)

// Update describes one property change applied by the host.
type Update struct {
	TwinID   string    `json:"twinId"`
	Property string    `json:"property"`
	Value    any       `json:"value"`
	Source   string    `json:"source,omitempty"`
	Time     time.Time `json:"time"`
}

// Broadcaster pushes updates to live observers.
type Broadcaster interface {
	Broadcast(ctx context.Context, u Update) error
}

// Broadcasters fans an update out to every member.
type Broadcasters []Broadcaster

func (bs Broadcasters) Broadcast(ctx context.Context, u Update) error {
	var errs []error
	for _, b := range bs {
		if err := b.Broadcast(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
