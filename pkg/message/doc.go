// Package message holds the request and response values threaded through
// one connection, and the closed set of handler results.
//
// A handler result is one of four cases:
//
//	message.Text("Hello")                 text/plain
//	message.Bytes(raw)                    application/octet-stream
//	message.JSON(v)                       application/json
//	message.Stream{ContentType, Open}     read lazily, chunk by chunk
//
// Plain Go values are lifted onto these cases by Lift. Response bodies are
// lazy and restartable: iterating Chunks twice yields the same bytes.
package message
