package executor

import "context"

// Pool is the lifecycle interface shared by FixedPool and ElasticPool: a set
// of executors managed and drawn from together. Start/Stop act on every
// executor in the set at once; Next draws one by round-robin.
type Pool interface {
	// Start begins running each executor, launching one goroutine per
	// executor before returning. Always non-blocking: callers that need a
	// pool's executor to run a blocking loop (the accept pool's acceptors)
	// do so by Posting that loop onto an executor drawn from the pool, not
	// by blocking inside Start itself.
	Start(ctx context.Context) error
	// Stop requests shutdown. When force is false, each executor drains its
	// queue before exiting; when true, pending tasks are abandoned.
	Stop(force bool) error
	// IsFree reports whether every executor in the pool currently has no
	// pending tasks. A snapshot, not a lock against concurrent posts.
	IsFree() bool
	// Next returns an executor by round-robin.
	Next() *Executor
}
