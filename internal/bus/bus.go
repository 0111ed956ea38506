// Package bus defines the publish/subscribe contract the engine uses for
// every inbound and outbound event (§6). Topics are slash-separated paths
// (`drivers/{id}/location`, `jobs/{id}/bid`, ...); the concrete transport
// picks its own wire mapping.
package bus

import "context"

// Handler processes one inbound message. Returning a nil error acks the
// message; a non-nil error nacks it for requeue when the transport supports
// that (§7: bus errors are retried, never silently dropped).
type Handler func(ctx context.Context, topic string, body []byte) error

// Bus is the message-bus boundary. Publish is at-least-once; Subscribe
// patterns may use a single-segment wildcard `+` (e.g. `pubs/requests/+`).
type Bus interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(ctx context.Context, topicPattern string, handler Handler) error
	Close() error
}
