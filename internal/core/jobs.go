package core

import (
	"context"
)

// JobDispatcher defines the contract for a system that can accept and queue
// background jobs for asynchronous processing. This interface decouples the
// event source (e.g., a webhook handler) from the job execution mechanism.
type JobDispatcher interface {
	// Dispatch accepts a Build and queues it for processing.
	// It returns an error if the job cannot be queued, for example, if the
	// queue is full, providing a mechanism for backpressure.
	Dispatch(ctx context.Context, build *Build) error
}

// Job represents a single, executable unit of work processed by a dispatcher.
type Job interface {
	// Run executes the job's logic for one build.
	Run(ctx context.Context, build *Build) error
}

// Publisher reports results back to the review host.
type Publisher interface {
	Publish(ctx context.Context, result *Result) error
}
