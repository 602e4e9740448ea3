// Package protocol implements the per-connection state machines that sit
// between the gateway and the dispatcher.
//
// # HTTP
//
// One HTTP exchange moves through these states:
//
//	Start ──► BodyAwait ──► Dispatch ──► Respond ──► Done
//	                           │            ▲
//	                           ├► ErrorCaught ──┤
//	                           └► RedirectCaught┘
//
// The handler attaches a session from the session cookie (creating one and
// setting the cookie when the request has none), drains the body, runs the
// endpoint and maps its outcome to a response. Emission of the response
// start and body events is bounded by the response timeout. A timed-out
// emission is abandoned, never retried.
//
// # Socket
//
// A socket connection is resolved like a request with the method
// WEBSOCKET. Unroutable connections are closed with code 1008 before they
// are accepted. Routed connections are accepted and handed to the handler,
// which talks to the client through the socket bound in its context.
//
// # Lifespan
//
// The lifespan handler runs every registered startup callback on
// lifespan.startup and every shutdown callback on lifespan.shutdown,
// reporting failures through the matching .failed event.
package protocol
