// Package logx wraps zerolog for azanbot.
//
// Console output uses a short timestamp and caller. The optional file output
// is JSON. Records at or above a configured level can also be mirrored to a
// chat through any Sink, throttled by a token bucket.
package logx
