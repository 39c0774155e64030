package hal

import "context"

// Arbiter interface defines set of methods that are needed to share a downstream bus with
// another master
type Arbiter interface {
	VerifyIdentity() error
	RequestDownstreamBus(ctx context.Context, reserveTimeMs int) error
	AbandonDownstreamBus() error
	Close() error
}
