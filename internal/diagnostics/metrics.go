// Package diagnostics is the optional pass/fail timing sink. Every recording
// method is safe on a nil *Sink so the engine runs identically without it.
package diagnostics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Sink struct {
	productFetch    *prometheus.HistogramVec
	eligibility     *prometheus.HistogramVec
	receiptPosts    *prometheus.CounterVec
	attributeSyncs  *prometheus.CounterVec
	purchaseResults *prometheus.CounterVec
}

// NewSink registers and returns the Prometheus-backed diagnostics sink.
func NewSink(reg prometheus.Registerer) *Sink {
	s := &Sink{
		productFetch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storebridge_product_fetch_duration_seconds",
			Help:    "Store product fetch latency by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		eligibility: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storebridge_intro_eligibility_duration_seconds",
			Help:    "Intro eligibility check latency by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		receiptPosts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storebridge_receipt_posts_total",
			Help: "Receipt post outcomes.",
		}, []string{"outcome", "source"}),
		attributeSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storebridge_attribute_syncs_total",
			Help: "Subscriber attribute sync outcomes.",
		}, []string{"outcome"}),
		purchaseResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storebridge_purchases_total",
			Help: "Purchase outcomes by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(s.productFetch, s.eligibility, s.receiptPosts, s.attributeSyncs, s.purchaseResults)
	return s
}

func (s *Sink) ProductFetch(d time.Duration, outcome string) {
	if s == nil {
		return
	}
	s.productFetch.WithLabelValues(outcome).Observe(d.Seconds())
}

func (s *Sink) EligibilityCheck(d time.Duration, outcome string) {
	if s == nil {
		return
	}
	s.eligibility.WithLabelValues(outcome).Observe(d.Seconds())
}

func (s *Sink) ReceiptPost(outcome, source string) {
	if s == nil {
		return
	}
	s.receiptPosts.WithLabelValues(outcome, source).Inc()
}

func (s *Sink) AttributeSync(outcome string) {
	if s == nil {
		return
	}
	s.attributeSyncs.WithLabelValues(outcome).Inc()
}

func (s *Sink) Purchase(result string) {
	if s == nil {
		return
	}
	s.purchaseResults.WithLabelValues(result).Inc()
}
