// Package server exposes the calculation service over HTTP.
//
// Routes:
//
//	POST   /v1/calculations                 submit one request (calc:submit)
//	POST   /v1/calculations:batch           submit many requests (calc:submit)
//	GET    /v1/calculations/{fingerprint}   cached outcome or in-flight state (calc:read)
//	DELETE /v1/calculations/{fingerprint}   invalidate a cached outcome (calc:invalidate)
//	DELETE /v1/calculations?method=&basis=&kind=&molecule=
//	                                        invalidate every match, all=true for
//	                                        everything (calc:invalidate)
//	POST   /v1/fingerprint                  canonical form and fingerprint (calc:read)
//	POST   /v1/classify                     classify a diagnostic (calc:read)
//	GET    /v1/strategies                   recovery table (calc:read)
//	GET    /v1/flights                      in-flight computations (calc:read)
//	GET    /v1/stats                        cache and engine statistics (calc:read)
//	GET    /healthz, /readyz, /health       health, unauthenticated
//	GET    /metrics                         Prometheus metrics, unauthenticated
//
// A submission that outlives its wait bound answers 202 with a Location
// header pointing at the fingerprint, which callers can poll.
package server
