package pubsub

import "context"

// Publisher persists an event payload on a stream subject. The publish is
// acknowledged by the broker before the call returns.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Health(ctx context.Context) error
}
