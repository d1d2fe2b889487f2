// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

// Package observability holds the Prometheus metrics and OpenTelemetry spans
// recorded by the regionizer pipeline.
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline stage names used as metric labels and span names.
const (
	StagePrepare  = "prepare"
	StageCells    = "cells"
	StageRefine   = "refine"
	StageAssemble = "assemble"
	StageClip     = "clip"
)

// Collector bundles the Prometheus metrics of the regionizer.
type Collector struct {
	gatherer prometheus.Gatherer

	StageDurations *prometheus.HistogramVec
	Regions        prometheus.Counter
	Errors         *prometheus.CounterVec
	LastRunSeeds   prometheus.Gauge
}

// NewCollector registers regionizer metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "s2regionizer_stage_duration_seconds",
		Help:    "Time spent in each regionizer stage, summed over cells for per-cell stages.",
		Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"stage"})
	durations, err := registerHistogramVec(reg, durations, "s2regionizer_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	regions, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "s2regionizer_regions_total",
		Help: "Total number of regions produced.",
	}), "s2regionizer_regions_total")
	if err != nil {
		return nil, err
	}

	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "s2regionizer_errors_total",
		Help: "Total number of failed runs, labeled by error kind.",
	}, []string{"kind"})
	errs, err = registerCounterVec(reg, errs, "s2regionizer_errors_total")
	if err != nil {
		return nil, err
	}

	seeds, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "s2regionizer_last_run_seeds",
		Help: "Number of seeds in the most recent run.",
	}), "s2regionizer_last_run_seeds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		StageDurations: durations,
		Regions:        regions,
		Errors:         errs,
		LastRunSeeds:   seeds,
	}, nil
}

// ObserveStage records d against stage. It is safe to call on a nil Collector.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil || c.StageDurations == nil {
		return
	}
	c.StageDurations.WithLabelValues(stage).Observe(d.Seconds())
}

// AddRegions counts n produced regions.
func (c *Collector) AddRegions(n int) {
	if c == nil || c.Regions == nil {
		return
	}
	c.Regions.Add(float64(n))
}

// RecordError counts a failed run of the given kind.
func (c *Collector) RecordError(kind string) {
	if c == nil || c.Errors == nil {
		return
	}
	c.Errors.WithLabelValues(kind).Inc()
}

// SetSeeds records the seed count of the current run.
func (c *Collector) SetSeeds(n int) {
	if c == nil || c.LastRunSeeds == nil {
		return
	}
	c.LastRunSeeds.Set(float64(n))
}

// WriteTextfile writes the gathered metrics in the text exposition format,
// for batch jobs picked up by the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return prometheus.WriteToTextfile(path, gatherer)
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
