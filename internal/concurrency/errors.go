package concurrency

import "errors"

// ErrQueueFull is returned by Acquire when the global waiter queue is
// already at its configured MaxQueueDepth.
var ErrQueueFull = errors.New("concurrency: queue full")

// ErrQueueTimeout is returned by Acquire when a waiter sits in the queue
// longer than the configured QueueTimeout without being admitted.
var ErrQueueTimeout = errors.New("concurrency: queue timeout")
