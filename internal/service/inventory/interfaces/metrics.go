// internal/service/inventory/interfaces/metrics.go
package interfaces

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	stockOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockhold_operations_total",
		Help: "Stock mutations by operation and outcome.",
	}, []string{"operation", "outcome"})

	insufficientStockRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockhold_insufficient_stock_total",
		Help: "Reservations rejected because available stock was too low.",
	})

	wsConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stockhold_ws_clients",
		Help: "Currently connected stock push subscribers.",
	})
)

func init() {
	prometheus.MustRegister(stockOperations, insufficientStockRejections, wsConnectedClients)
}
