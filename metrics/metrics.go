// The metrics package instruments your code.
//
// Metrics are kept in the go-metrics default registry. Start logs them
// periodically, and Handler serves them as JSON.
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	metrics "github.com/rcrowley/go-metrics"
)

// Namespace is the namespace under which all metrics will get incremented.
// Typically this should match up with the running service ("worker",
// "server").
var Namespace string

func getWithNamespace(metricName string) string {
	if Namespace == "" {
		return metricName
	}
	return fmt.Sprintf("%s.%s", Namespace, metricName)
}

// Start logs every metric in the registry to logger at the given interval,
// until the process exits. A zero interval disables logging.
func Start(logger *slog.Logger, interval time.Duration) {
	if interval <= 0 {
		return
	}
	l := slog.NewLogLogger(logger.With("component", "metrics").Handler(), slog.LevelInfo)
	go metrics.Log(metrics.DefaultRegistry, interval, l)
}

// Increment a counter with the given name.
func Increment(name string) {
	mn := getWithNamespace(name)
	m := metrics.GetOrRegisterMeter(mn, nil)
	m.Mark(1)
	slog.Debug("increment", "metric", mn)
}

// Measure that the given metric has the given value.
func Measure(name string, value int64) {
	mn := getWithNamespace(name)
	g := metrics.GetOrRegisterGauge(mn, nil)
	g.Update(value)
	slog.Debug("measure", "metric", mn, "value", value)
}

// Add a new timing measurement for the given metric.
func Time(name string, value time.Duration) {
	mn := getWithNamespace(name)
	t := metrics.GetOrRegisterTimer(mn, nil)
	t.Update(value)
	slog.Debug("time", "metric", mn, "value", value)
}

// Handler writes a JSON snapshot of every metric.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		metrics.WriteJSONOnce(metrics.DefaultRegistry, w)
	})
}
