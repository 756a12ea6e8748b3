// Package metrics 收集加载/打开/抓取的计数，并以 Prometheus textfile 格式落盘。
//
// CLI 是短进程，不暴露 HTTP 端点；node_exporter 的 textfile collector 读取输出文件即可。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/John-Robertt/DBPick/internal/loader"
)

type Metrics struct {
	Registry *prometheus.Registry

	LoadsTotal      *prometheus.CounterVec
	LoadDuration    prometheus.Histogram
	RecordsLoaded   *prometheus.GaugeVec
	RecordsDropped  *prometheus.GaugeVec
	OpensTotal      *prometheus.CounterVec
	EmptySelections prometheus.Counter
	CrawlRequests   *prometheus.CounterVec
	CrawlMovies     prometheus.Gauge
}

// New 使用独立 Registry（而不是全局默认），便于测试与多次构造。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		LoadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dbpick_loads_total",
			Help: "Total number of dataset loads.",
		}, []string{"kind", "result"}),
		LoadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dbpick_load_duration_seconds",
			Help:    "Duration of dataset loads.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}),
		RecordsLoaded: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dbpick_records_loaded",
			Help: "Records kept by the last successful load.",
		}, []string{"kind"}),
		RecordsDropped: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dbpick_records_dropped",
			Help: "Malformed lines dropped by the last successful load.",
		}, []string{"kind"}),
		OpensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dbpick_opens_total",
			Help: "Total number of links opened.",
		}, []string{"link_type", "result"}),
		EmptySelections: f.NewCounter(prometheus.CounterOpts{
			Name: "dbpick_empty_selections_total",
			Help: "Picks that found no candidate.",
		}),
		CrawlRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dbpick_crawl_requests_total",
			Help: "Douban chart requests by outcome.",
		}, []string{"status"}),
		CrawlMovies: f.NewGauge(prometheus.GaugeOpts{
			Name: "dbpick_crawl_movies",
			Help: "Distinct movies collected by the crawler.",
		}),
	}
}

// LoadHook 返回 loader.WithHook 可用的回调。
func (m *Metrics) LoadHook(kind string) func(loader.Event) {
	return func(e loader.Event) {
		m.LoadDuration.Observe(e.Duration.Seconds())
		if e.Err != nil {
			m.LoadsTotal.WithLabelValues(kind, "failure").Inc()
			return
		}
		m.LoadsTotal.WithLabelValues(kind, "success").Inc()
		m.RecordsLoaded.WithLabelValues(kind).Set(float64(e.Kept))
		m.RecordsDropped.WithLabelValues(kind).Set(float64(e.Dropped))
	}
}

func (m *Metrics) ObserveOpen(linkType string, opened, failed int) {
	m.OpensTotal.WithLabelValues(linkType, "success").Add(float64(opened))
	m.OpensTotal.WithLabelValues(linkType, "failure").Add(float64(failed))
}

// WriteTextfile 原子写出当前指标（prometheus.WriteToTextfile 内部使用临时文件 + rename）。
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
