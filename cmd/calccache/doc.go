// Calccache fronts a quantum-chemistry engine with a result cache and
// automatic failure recovery.
//
// Usage:
//
//	calccache serve --config calccache.yaml     # run the HTTP API
//	calccache submit request.json               # run one calculation locally
//	calccache fingerprint request.json          # print a request's cache key
//	calccache classify "SCF did not converge"   # categorize a diagnostic
//	calccache strategies                        # list recovery strategies
//	calccache invalidate <fingerprint>          # drop a cached outcome
//	calccache invalidate --method b3lyp         # drop every b3lyp outcome
//	calccache prune                             # drop expired durable entries
//	calccache token --subject ci --scope calc:submit
package main
