// Package health reports whether the gateway and its dependencies can serve
// traffic.
//
// A Checker reports one component: the key store, the upstream token cache,
// a circuit breaker or process memory. An Aggregator runs every registered
// checker concurrently under a deadline and folds the results into one
// Status: Unhealthy wins over Degraded, which wins over Healthy.
//
//	agg := health.NewAggregator(health.AggregatorConfig{})
//	agg.Register(health.NewStoreChecker(store))
//	agg.Register(health.NewTokenChecker(tokens))
//	health.RegisterHandlers(mux, agg, version)
//
// /health and /healthz never require credentials.
package health
