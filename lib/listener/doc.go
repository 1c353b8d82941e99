// Package listener provides the callback registries of a node.
//
//   - KeyListeners: debounced callbacks per key with stable numeric handles.
//     Each listener owns a cancellable timer; a newer trigger or a removal
//     invalidates the pending dispatch, so a burst delivers only the last value.
//
//   - IDListeners: one-shot callbacks keyed by correlation id, used to route
//     replies to the request that is waiting for them.
//
//   - Bus: a typed publish/subscribe bus keyed by event name.
//
// Timers come from github.com/benbjohnson/clock so tests can drive them with a mock clock.
package listener
