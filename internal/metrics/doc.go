/*
Package metrics provides Prometheus-based metrics for the kernel's command
dispatch loop and container cache.

Collector tracks counters per command (create/append/get/update/delete/
migrate/flush/rollback/version), a row-scan duration histogram, per-class
cache hit/miss counters and size gauges, and a lock-contention counter.

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9090,
		Namespace: "cdbms",
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(ctx)

	start := time.Now()
	_, err = kernel.ProcessCommand(kctx, workerID, tokens)
	collector.RecordCommand("append", time.Since(start), err == nil)

/metrics serves the Prometheus exposition format; /health and
/debug/commands serve a JSON status check and a human-readable table,
respectively.
*/
package metrics
