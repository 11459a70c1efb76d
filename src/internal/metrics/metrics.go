// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package metrics records validation run statistics.
package metrics

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Issuer resolution methods.
const (
	MethodCached = "cached"
	MethodPool   = "pool"
	MethodRemote = "remote"
	MethodAIA    = "aia"
	MethodNone   = "none"
)

// Revocation outcomes.
const (
	OutcomeGood          = "good"
	OutcomeRevoked       = "revoked"
	OutcomeUnknown       = "unknown"
	OutcomeNotFound      = "not_found"
	OutcomeInvalid       = "invalid"
	OutcomeError         = "error"
	OutcomeSkipped       = "skipped"
	OutcomeContradiction = "contradiction"
)

// Recorder receives events from a validation run.
type Recorder interface {
	// IssuerResolved counts one issuer lookup and the method that settled it.
	IssuerResolved(method string)
	// RevocationChecked counts one resolver attempt (source "ocsp" or "crl").
	RevocationChecked(source, outcome string)
	// FetchCompleted counts one network fetch of kind "aia", "crl", "ocsp" or "bundle".
	FetchCompleted(kind string, ok bool)
	// ContextCompleted observes the wall time of a validation run.
	ContextCompleted(d time.Duration)
}

type nop struct{}

func (nop) IssuerResolved(string)            {}
func (nop) RevocationChecked(string, string) {}
func (nop) FetchCompleted(string, bool)      {}
func (nop) ContextCompleted(time.Duration)   {}

// Nop returns a Recorder that discards everything.
func Nop() Recorder { return nop{} }

// Prometheus is a [Recorder] backed by its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	issuers     *prometheus.CounterVec
	revocations *prometheus.CounterVec
	fetches     *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewPrometheus creates a recorder with a fresh registry. Metric names are
// prefixed with namespace.
func NewPrometheus(namespace string) *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		issuers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issuer_resolutions_total",
			Help:      "Issuer lookups by the method that resolved them.",
		}, []string{"method"}),
		revocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revocation_checks_total",
			Help:      "Revocation resolver attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Network fetches by kind and result.",
		}, []string{"kind", "result"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_duration_seconds",
			Help:      "Wall time of validation runs.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (p *Prometheus) IssuerResolved(method string) {
	p.issuers.WithLabelValues(method).Inc()
}

func (p *Prometheus) RevocationChecked(source, outcome string) {
	p.revocations.WithLabelValues(source, outcome).Inc()
}

func (p *Prometheus) FetchCompleted(kind string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	p.fetches.WithLabelValues(kind, result).Inc()
}

func (p *Prometheus) ContextCompleted(d time.Duration) {
	p.duration.Observe(d.Seconds())
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Summary renders every counter and histogram as sorted "name{labels} value"
// lines.
func (p *Prometheus) Summary() (string, error) {
	families, err := p.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("metrics: gather: %w", err)
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName() + labels(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				lines = append(lines,
					fmt.Sprintf("%s_count %d", name, h.GetSampleCount()),
					fmt.Sprintf("%s_sum %g", name, h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}

func labels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	var b bytes.Buffer
	b.WriteByte('{')
	for i, lp := range pairs {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", lp.GetName(), lp.GetValue())
	}
	b.WriteByte('}')
	return b.String()
}
