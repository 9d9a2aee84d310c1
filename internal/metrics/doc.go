// Package metrics collects latency and outcome statistics for sends.
//
// A [Collector] aggregates latencies in an HDR histogram together with
// success, failure and mocked counts:
//
//	collector := metrics.NewCollector()
//	conn.Middleware().Merge(metrics.Middleware(collector))
//
//	// ... send requests ...
//
//	stats := collector.Stats(0)
//	fmt.Println(stats.P99Latency, stats.Failures)
//
// A send fails when it returns an error or a 4xx/5xx status. Errors are
// grouped by kind, see [ErrorName].
//
// The Collector is safe for concurrent use.
package metrics
