package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the bonding curve's Prometheus instruments.
type Collector struct {
	registry *prometheus.Registry

	trades       *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	baseVolume   *prometheus.CounterVec
	quoteVolume  *prometheus.CounterVec
	reserveBase  *prometheus.GaugeVec
	reserveQuote *prometheus.GaugeVec
}

// New registers all instruments on a fresh registry.
func New() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bonding_curve",
			Name:      "trades_total",
			Help:      "Committed pool operations by side.",
		}, []string{"side"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bonding_curve",
			Name:      "rejections_total",
			Help:      "Rejected pool operations by side and error code.",
		}, []string{"side", "code"}),
		baseVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bonding_curve",
			Name:      "base_volume_total",
			Help:      "Native currency moved by committed operations.",
		}, []string{"side"}),
		quoteVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bonding_curve",
			Name:      "quote_volume_total",
			Help:      "Tokens moved by committed operations.",
		}, []string{"side"}),
		reserveBase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bonding_curve",
			Name:      "reserve_base",
			Help:      "Native reserve per pool after the last settlement.",
		}, []string{"mint"}),
		reserveQuote: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bonding_curve",
			Name:      "reserve_quote",
			Help:      "Token reserve per pool after the last settlement.",
		}, []string{"mint"}),
	}

	for _, col := range []prometheus.Collector{
		c.trades, c.rejections, c.baseVolume, c.quoteVolume, c.reserveBase, c.reserveQuote,
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Registry exposes the registry for the HTTP handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveTrade(side, mint string, base, quote, reserveBase, reserveQuote uint64) {
	if c == nil {
		return
	}
	c.trades.WithLabelValues(side).Inc()
	c.baseVolume.WithLabelValues(side).Add(float64(base))
	c.quoteVolume.WithLabelValues(side).Add(float64(quote))
	c.reserveBase.WithLabelValues(mint).Set(float64(reserveBase))
	c.reserveQuote.WithLabelValues(mint).Set(float64(reserveQuote))
}

func (c *Collector) ObserveRejection(side, code string) {
	if c == nil {
		return
	}
	c.rejections.WithLabelValues(side, code).Inc()
}
