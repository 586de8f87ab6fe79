package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// reuse регистрирует collector. Если такой уже есть (второй экземпляр
// сервиса на том же registry, тесты), возвращается существующий.
func reuse[C prometheus.Collector](registerer prometheus.Registerer, name string, collector C) C {
	err := registerer.Register(collector)
	if err == nil {
		return collector
	}

	var dup prometheus.AlreadyRegisteredError
	if !errors.As(err, &dup) {
		panic(fmt.Sprintf("register metric %s: %v", name, err))
	}
	existing, ok := dup.ExistingCollector.(C)
	if !ok {
		panic(fmt.Sprintf("metric %s is registered as %T", name, dup.ExistingCollector))
	}
	return existing
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return reuse[prometheus.Counter](registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return reuse(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return reuse[prometheus.Gauge](registerer, opts.Name, prometheus.NewGauge(opts))
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	return reuse[prometheus.Histogram](registerer, opts.Name, prometheus.NewHistogram(opts))
}
