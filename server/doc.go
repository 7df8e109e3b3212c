// Package server exposes the engine over HTTP.
//
// Result endpoints answer with {success, mode, total, results}; failures
// answer with {success:false, message, details?}. Caller mistakes map to 4xx,
// upstream failures to 502, and a missing index collection to 503.
package server
