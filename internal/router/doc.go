// Package router decouples the scanner receiver from its consumers.
//
// The receiver invokes its handlers on its own goroutine and must never block
// on a slow consumer. Router.OnState and Router.OnMessage stamp each
// notification as an Event and push it onto an unbounded GrowableBuffer; a
// single dispatch goroutine then hands events to every Sink in arrival order.
//
// Sink errors are logged and counted. They never stop delivery to the other
// sinks or to later events.
package router
