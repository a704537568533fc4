package handlers

import (
	"github.com/bidyaasp/project-management/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Metrics registers the gauges that read live state and returns the
// Prometheus exposition handler. Call it once per registry.
func Metrics(reg prometheus.Registerer, gatherer prometheus.Gatherer, db *gorm.DB, hub *services.SSEHub, queue services.TaskQueue) gin.HandlerFunc {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pms_sse_active_clients",
		Help: "Number of active SSE connections",
	}, func() float64 { return float64(hub.ClientCount()) }))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pms_queue_async_enabled",
		Help: "Whether the Redis-backed activity queue is enabled (1=yes, 0=no)",
	}, func() float64 {
		if queue != nil && queue.IsAsync() {
			return 1
		}
		return 0
	}))

	if sqlDB, err := db.DB(); err == nil {
		reg.MustRegister(collectors.NewDBStatsCollector(sqlDB, "pms"))
	}

	h := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
