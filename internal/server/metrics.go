package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/gristips/gristips/internal"
	"github.com/gristips/gristips/internal/logging"
)

var (
	rateLimitDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gristips",
		Name:      "rate_limit_denials_total",
		Help:      "The number of requests denied by a rate limit",
	}, []string{"limit"})

	gristRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gristips",
		Name:      "grist_retries_total",
		Help:      "The number of requests to Grist that were retried, by the kind of failure",
	}, []string{"kind"})
)

type metricValue struct {
	Value       float64
	LabelValues []string
}

// collector implements the prometheus.Collector interface
type collector struct {
	desc        *prometheus.Desc
	valueType   prometheus.ValueType
	collectFunc func() []metricValue
}

func newCollector(opts prometheus.Opts, valueType prometheus.ValueType, variableLabels []string, collectFunc func() []metricValue) *collector {
	fqname := prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name)
	return &collector{
		desc:        prometheus.NewDesc(fqname, opts.Help, variableLabels, opts.ConstLabels),
		valueType:   valueType,
		collectFunc: collectFunc,
	}
}

// NewGaugeCollector creates a collect with type Gauge
func NewGaugeCollector(opts prometheus.Opts, variableLabels []string, collectFunc func() []metricValue) *collector {
	return newCollector(opts, prometheus.GaugeValue, variableLabels, collectFunc)
}

// Describe is implemented by DescribeByCollect
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements Collector. It create a set of constant metrics with the values and labels
// as described by collectFunc
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for _, metricValue := range c.collectFunc() {
		ch <- prometheus.MustNewConstMetric(c.desc, c.valueType, metricValue.Value, metricValue.LabelValues...)
	}
}

// countQuery returns a collect function for a query that selects a count,
// grouped by the labels of the metric.
func countQuery(db *gorm.DB, name, query string, labels ...string) func() []metricValue {
	return func() []metricValue {
		var results []map[string]interface{}
		if err := db.Raw(query).Scan(&results).Error; err != nil {
			logging.L.Warn().Err(err).Msg(name)
			return []metricValue{}
		}

		values := make([]metricValue, 0, len(results))
		for _, result := range results {
			value := metricValue{Value: toFloat(result["count"]), LabelValues: []string{}}
			for _, label := range labels {
				value.LabelValues = append(value.LabelValues, toLabel(result[label]))
			}
			values = append(values, value)
		}
		return values
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func toLabel(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case bool:
		if s {
			return "true"
		}
		return "false"
	case int64:
		// sqlite returns booleans as integers
		if s == 0 {
			return "false"
		}
		return "true"
	default:
		return ""
	}
}

func setupMetrics(db *gorm.DB) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	if rawDB, err := db.DB(); err == nil {
		registry.MustRegister(collectors.NewDBStatsCollector(rawDB, db.Dialector.Name()))
	}

	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A metric with a constant '1' value labeled by version, commit, and date from which gristips was built",
		ConstLabels: prometheus.Labels{
			"version": internal.FullVersion(),
			"commit":  internal.Commit,
			"date":    internal.Date,
		},
	}, func() float64 { return 1 }))

	registry.MustRegister(rateLimitDenials, gristRetries)

	registry.MustRegister(NewGaugeCollector(prometheus.Opts{
		Namespace: "gristips",
		Name:      "users",
		Help:      "The total number of users, by whether they are public agents",
	}, []string{"public_agent"}, countQuery(db, "users",
		"SELECT is_public_agent, COUNT(*) as count FROM users WHERE deleted_at IS NULL GROUP BY is_public_agent",
		"is_public_agent")))

	registry.MustRegister(NewGaugeCollector(prometheus.Opts{
		Namespace: "gristips",
		Name:      "grist_keys",
		Help:      "The total number of users with a Grist API key",
	}, []string{}, countQuery(db, "grist_keys",
		"SELECT COUNT(*) as count FROM users WHERE deleted_at IS NULL AND grist_api_key_encrypted <> ''")))

	registry.MustRegister(NewGaugeCollector(prometheus.Opts{
		Namespace: "gristips",
		Name:      "sessions",
		Help:      "The total number of sessions that were not logged out",
	}, []string{}, countQuery(db, "sessions",
		"SELECT COUNT(*) as count FROM sessions WHERE deleted_at IS NULL")))

	registry.MustRegister(NewGaugeCollector(prometheus.Opts{
		Namespace: "gristips",
		Name:      "automations",
		Help:      "The total number of automations, by schedule",
	}, []string{"schedule"}, countQuery(db, "automations",
		"SELECT schedule, COUNT(*) as count FROM automations WHERE deleted_at IS NULL GROUP BY schedule",
		"schedule")))

	return registry
}
