package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
}

type BusinessMetrics struct {
	SchedulesComputedTotal *prometheus.CounterVec
	RepaymentsTotal        *prometheus.CounterVec
	DisbursementsTotal     prometheus.Counter
}

var (
	DB = DBMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "microfinance_db_query_duration_seconds",
				Help:    "Histogram of database query latencies.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_name", "status"},
		),
	}

	Business = BusinessMetrics{
		SchedulesComputedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microfinance_schedules_computed_total",
				Help: "Total number of loan schedules computed, by interest method.",
			},
			[]string{"method"},
		),
		RepaymentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microfinance_repayments_total",
				Help: "Total number of repayment attempts, by outcome.",
			},
			[]string{"status"},
		),
		DisbursementsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "microfinance_disbursements_total",
				Help: "Total number of loan disbursements recorded.",
			},
		),
	}
)

func RecordDBQuery(queryName, status string, duration time.Duration) {
	DB.QueryDuration.WithLabelValues(queryName, status).Observe(duration.Seconds())
}

func RecordScheduleComputed(method string) {
	Business.SchedulesComputedTotal.WithLabelValues(method).Inc()
}

func RecordRepayment(status string) {
	Business.RepaymentsTotal.WithLabelValues(status).Inc()
}

func RecordDisbursement() {
	Business.DisbursementsTotal.Inc()
}
