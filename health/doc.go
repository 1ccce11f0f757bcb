// Package health reports whether the calculation service can do work.
//
// Checkers report a Status; an Aggregator runs them in parallel under a
// deadline and reduces them to one overall status. The package ships
// checkers for process memory, anything that can be pinged (the cache
// store's durable backend) and engine saturation, plus liveness,
// readiness and detailed HTTP handlers.
//
//	agg := health.NewAggregator(health.AggregatorConfig{Timeout: 5 * time.Second})
//	agg.Register(health.NewPingChecker("cache", store))
//	agg.Register(health.NewSaturationChecker("engine", orch.Saturation, 0.8))
//	health.RegisterHandlers(mux, agg)
package health
