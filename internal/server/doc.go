// Package server composes the reactor, the timer heap, the worker pool, and
// the per-connection HTTP state machines into the event loop.
//
// A single reactor goroutine owns the epoll registrations and the timer
// heap. Client readiness is handed to the worker pool as read or write
// units; one-shot arming guarantees at most one worker drives a given
// connection at any instant, so workers may safely re-arm their own fd from
// inside a task.
package server
