// Package notifications delivers push notifications for pipeline milestones
// via ntfy. When no topic is configured every notification is a no-op.
package notifications
