// Package notify turns reminder settings into four repeating daily
// notifications and delivers them when they come due.
package notify

import (
	"context"

	"github.com/ykvlv/nudge-bot/internal/domain"
)

// Trigger is a repeating daily fire time.
type Trigger struct {
	Repeats bool `json:"repeats"`
	Hour    int  `json:"hour"`
	Minute  int  `json:"minute"`
}

// Descriptor is one notification submitted to a Platform.
type Descriptor struct {
	ID           int                 `json:"id"`
	ReminderType domain.ReminderType `json:"reminder_type"`
	Title        string              `json:"title"`
	Body         string              `json:"body"`
	Trigger      Trigger             `json:"trigger"`
	TZ           string              `json:"timezone"`
	Channel      string              `json:"channel,omitempty"`
}

// Permission is the outcome of a notification permission request.
type Permission string

const (
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
	PermissionUnsupported Permission = "unsupported"
)

// Platform is the local-notification service. Implementations return
// domain.ErrPlatformUnsupported when they cannot schedule at all.
type Platform interface {
	RequestPermission(ctx context.Context, userID string) (Permission, error)
	Schedule(ctx context.Context, userID string, batch []Descriptor) error
	Cancel(ctx context.Context, userID string, ids []int) error
	Pending(ctx context.Context, userID string) ([]Descriptor, error)
}

// Unsupported is the Platform used when no delivery transport is configured.
type Unsupported struct{}

func (Unsupported) RequestPermission(context.Context, string) (Permission, error) {
	return PermissionUnsupported, nil
}

func (Unsupported) Schedule(context.Context, string, []Descriptor) error {
	return domain.ErrPlatformUnsupported
}

func (Unsupported) Cancel(context.Context, string, []int) error {
	return domain.ErrPlatformUnsupported
}

func (Unsupported) Pending(context.Context, string) ([]Descriptor, error) {
	return nil, domain.ErrPlatformUnsupported
}
