// Package event publishes user lifecycle notifications to downstream
// consumers. Publication happens before the owning database transaction
// commits so a broker failure rolls the whole change back.
package event

import "context"

// Event names carried in the payload "event" field.
const (
	PermissionsChanged = "user.permissions.changed"
	RolesChanged       = "user.roles.changed"
)

// Publisher delivers a single event payload and confirms the broker
// accepted it before returning.
type Publisher interface {
	Publish(ctx context.Context, event string, payload map[string]any) error
	Close() error
}
