package handler

import (
	"pixcache/internal/core/service"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "pixcache"

var (
	hitsDesc = prometheus.NewDesc(metricsNamespace+"_cache_hits_total",
		"Requests answered from the cache", nil, nil)
	missesDesc = prometheus.NewDesc(metricsNamespace+"_cache_misses_total",
		"Requests that missed the cache", nil, nil)
	fillsDesc = prometheus.NewDesc(metricsNamespace+"_transforms_total",
		"Images fetched and transformed", nil, nil)
	failuresDesc = prometheus.NewDesc(metricsNamespace+"_failures_total",
		"Requests that ended in an error", nil, nil)
	storeFailuresDesc = prometheus.NewDesc(metricsNamespace+"_cache_store_failures_total",
		"Transformed images that could not be persisted", nil, nil)
)

// statsCollector exposes the service counters as Prometheus counters.
type statsCollector struct {
	stats *service.Stats
}

func (c statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- hitsDesc
	ch <- missesDesc
	ch <- fillsDesc
	ch <- failuresDesc
	ch <- storeFailuresDesc
}

func (c statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Snapshot()

	ch <- prometheus.MustNewConstMetric(hitsDesc, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(missesDesc, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(fillsDesc, prometheus.CounterValue, float64(s.Fills))
	ch <- prometheus.MustNewConstMetric(failuresDesc, prometheus.CounterValue, float64(s.Failures))
	ch <- prometheus.MustNewConstMetric(storeFailuresDesc, prometheus.CounterValue, float64(s.StoreFailures))
}

// metricsHandler serves the service counters plus the Go runtime metrics from a dedicated registry.
func metricsHandler(stats *service.Stats) echo.HandlerFunc {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		statsCollector{stats: stats},
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}
