package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersAttempted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_orders_attempted_total",
		Help: "Entry orders the bot tried to place",
	})
	OrdersPlaced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_orders_placed_total",
		Help: "Entry orders successfully handed to the broker",
	})
	OrdersFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_orders_failed_total",
		Help: "Entry orders that failed after retries",
	})
	OrdersRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_orders_rejected_total",
		Help: "Entries rejected before reaching the broker, by reason",
	}, []string{"reason"})
	ExitsTriggered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_exits_triggered_total",
		Help: "Position exits by reason",
	}, []string{"reason"})
	SignalsDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_signals_detected_total",
		Help: "Signals that cleared the minimum score, by kind",
	}, []string{"kind"})
	SessionPhase = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_session_phase",
		Help: "0=idle 1=range 2=entry 3=monitoring 4=flatten",
	})
	DailyPnL = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_daily_realized_pnl",
		Help: "Realized P&L for the current trading day in dollars",
	})
)

func init() {
	prometheus.MustRegister(
		OrdersAttempted, OrdersPlaced, OrdersFailed, OrdersRejected,
		ExitsTriggered, SignalsDetected, SessionPhase, DailyPnL,
	)
}
