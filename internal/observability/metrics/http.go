// Package metrics collects request and deployment counters and exposes them
// in Prometheus text exposition format without external dependencies.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestKey struct {
	handler string
	method  string
	code    string
}

type latencyKey struct {
	handler string
	method  string
}

type deploymentKey struct {
	outcome string
	code    string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu          sync.Mutex
	requests    map[requestKey]uint64
	latency     map[latencyKey]*histogram
	deployments map[deploymentKey]uint64
}

var defaultCollector = &collector{
	requests:    make(map[requestKey]uint64),
	latency:     make(map[latencyKey]*histogram),
	deployments: make(map[deploymentKey]uint64),
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	defaultCollector.observeHTTP(handler, method, status, duration)
}

// ObserveDeployment records the outcome of one orchestration call. On
// failure, code carries the unified error code of the rejection reason.
func ObserveDeployment(success bool, code string) {
	outcome := "success"
	if !success {
		outcome = "failure"
	} else {
		code = ""
	}
	defaultCollector.mu.Lock()
	defaultCollector.deployments[deploymentKey{outcome: outcome, code: code}]++
	defaultCollector.mu.Unlock()
}

func (c *collector) observeHTTP(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[requestKey{handler: handler, method: method, code: strconv.Itoa(status)}]++

	key := latencyKey{handler: handler, method: method}
	hist := c.latency[key]
	if hist == nil {
		hist = newHistogram()
		c.latency[key] = hist
	}
	hist.observe(duration.Seconds())
}

func newHistogram() *histogram {
	buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			break
		}
	}
}

// Handler exposes the collected metrics over HTTP.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, defaultCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var builder strings.Builder
	builder.Grow(1024)

	reqKeys := make([]requestKey, 0, len(c.requests))
	for key := range c.requests {
		reqKeys = append(reqKeys, key)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].handler != reqKeys[j].handler {
			return reqKeys[i].handler < reqKeys[j].handler
		}
		if reqKeys[i].method != reqKeys[j].method {
			return reqKeys[i].method < reqKeys[j].method
		}
		return reqKeys[i].code < reqKeys[j].code
	})
	builder.WriteString("# HELP guildforge_http_requests_total Total number of HTTP requests processed.\n")
	builder.WriteString("# TYPE guildforge_http_requests_total counter\n")
	for _, key := range reqKeys {
		builder.WriteString(fmt.Sprintf("guildforge_http_requests_total{handler=%q,method=%q,code=%q} %d\n",
			escape(key.handler), escape(key.method), escape(key.code), c.requests[key]))
	}

	latKeys := make([]latencyKey, 0, len(c.latency))
	for key := range c.latency {
		latKeys = append(latKeys, key)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].handler != latKeys[j].handler {
			return latKeys[i].handler < latKeys[j].handler
		}
		return latKeys[i].method < latKeys[j].method
	})
	builder.WriteString("# HELP guildforge_http_request_duration_seconds HTTP request duration in seconds.\n")
	builder.WriteString("# TYPE guildforge_http_request_duration_seconds histogram\n")
	for _, key := range latKeys {
		hist := c.latency[key]
		for idx, bound := range hist.buckets {
			builder.WriteString(fmt.Sprintf("guildforge_http_request_duration_seconds_bucket{handler=%q,method=%q,le=%q} %d\n",
				escape(key.handler), escape(key.method), formatFloat(bound), hist.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("guildforge_http_request_duration_seconds_bucket{handler=%q,method=%q,le=\"+Inf\"} %d\n",
			escape(key.handler), escape(key.method), hist.count))
		builder.WriteString(fmt.Sprintf("guildforge_http_request_duration_seconds_sum{handler=%q,method=%q} %s\n",
			escape(key.handler), escape(key.method), formatFloat(hist.sum)))
		builder.WriteString(fmt.Sprintf("guildforge_http_request_duration_seconds_count{handler=%q,method=%q} %d\n",
			escape(key.handler), escape(key.method), hist.count))
	}

	depKeys := make([]deploymentKey, 0, len(c.deployments))
	for key := range c.deployments {
		depKeys = append(depKeys, key)
	}
	sort.Slice(depKeys, func(i, j int) bool {
		if depKeys[i].outcome != depKeys[j].outcome {
			return depKeys[i].outcome < depKeys[j].outcome
		}
		return depKeys[i].code < depKeys[j].code
	})
	builder.WriteString("# HELP guildforge_deployments_total Total number of satellite deployment attempts.\n")
	builder.WriteString("# TYPE guildforge_deployments_total counter\n")
	for _, key := range depKeys {
		builder.WriteString(fmt.Sprintf("guildforge_deployments_total{outcome=%q,code=%q} %d\n",
			escape(key.outcome), escape(key.code), c.deployments[key]))
	}

	return builder.String()
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
