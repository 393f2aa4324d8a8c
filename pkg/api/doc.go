// Package api exposes abkit over HTTP with a chi router.
//
// Every response uses the same JSON envelope:
//
//	{"data": ..., "meta": {...}, "error": {"code": "...", "message": "...", "details": {...}}}
//
// Domain errors map to stable codes: validation failures answer 422 with
// per-field details, unknown experiments and flags 404, lifecycle conflicts
// (invalid transitions, immutable variants, concurrent writes, mismatched
// confirmations, closed experiments) 409.
//
// Routes:
//
//	GET    /resolve?flag=&participant_id=
//	POST   /events
//	GET    /experiments
//	POST   /experiments
//	GET    /experiments/{id}
//	PUT    /experiments/{id}/variants
//	POST   /experiments/{id}/start|confirm|reject|conclude|archive
//	GET    /experiments/{id}/analysis
//	GET    /experiments/{id}/decisions
//	GET    /experiments/{id}/assignments/{participant}
//	GET    /flags, POST /flags, GET|PUT|DELETE /flags/{name}
//	GET    /health/live, /health/ready, /metrics
//
// Each request gets an X-Request-ID, reused from the client when well formed.
// RequestIDExtractor adds it to log records.
package api
