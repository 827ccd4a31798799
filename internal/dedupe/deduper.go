package dedupe

import "context"

// Deduper is the sink's duplicate filter over tick ids (tx hash + pair
// address). At-least-once delivery means reprocessing is normal. Marking
// happens only after the insert succeeded — a tick marked before a failed
// write would be skipped on redelivery and lost.
type Deduper interface {
	IsDuplicate(ctx context.Context, id string) (bool, error)
	MarkSeen(ctx context.Context, id string) error
}
