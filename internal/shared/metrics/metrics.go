package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	tenantCacheHits      atomic.Uint64
	tenantCacheMisses    atomic.Uint64
	artifactRegenerated  atomic.Uint64
	dispatchJobsReceived atomic.Uint64
	dispatchJobsFailed   atomic.Uint64
	dispatchJobsDone     atomic.Uint64
	dispatchJobsDropped  atomic.Uint64

	documentsRendered = newCounterVec("renderer")
	renderFailures    = newCounterVec("step")
	deliveries        = newCounterVec("status")
	httpRequests      = newCounterVec("code")

	renderDuration = newHistogram([]float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000})
)

// IncTenantCacheHit counts a tenant lookup served from cache.
func IncTenantCacheHit() { tenantCacheHits.Add(1) }

// IncTenantCacheMiss counts a tenant lookup that went to the store.
func IncTenantCacheMiss() { tenantCacheMisses.Add(1) }

// IncArtifactRegenerated counts a delivery cache miss that re-rendered the artifact.
func IncArtifactRegenerated() { artifactRegenerated.Add(1) }

// IncDispatchJobsReceived counts queued send jobs picked up by a worker.
func IncDispatchJobsReceived() { dispatchJobsReceived.Add(1) }

// IncDispatchJobsFailed counts queued send jobs that failed.
func IncDispatchJobsFailed() { dispatchJobsFailed.Add(1) }

// IncDispatchJobsCompleted counts queued send jobs that finished and were deleted.
func IncDispatchJobsCompleted() { dispatchJobsDone.Add(1) }

// IncDispatchJobsDeletedUnrecoverable counts queued send jobs dropped without retry.
func IncDispatchJobsDeletedUnrecoverable() { dispatchJobsDropped.Add(1) }

// IncDocumentRendered counts a successful render by renderer ("layout", "clone").
func IncDocumentRendered(renderer string) { documentsRendered.Inc(renderer) }

// IncRenderFailure counts a failed render by step.
func IncRenderFailure(step string) { renderFailures.Inc(step) }

// IncDelivery counts a dispatch attempt by status ("sent", "error").
func IncDelivery(status string) { deliveries.Inc(status) }

// IncHTTPRequest counts a served request by status class ("2xx", "4xx", ...).
func IncHTTPRequest(status int) {
	if status < 100 || status > 599 {
		status = 500
	}
	httpRequests.Inc(strconv.Itoa(status/100) + "xx")
}

// ObserveRenderDurationMs records a render duration in milliseconds.
func ObserveRenderDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	renderDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "tenant_cache_hits_total", "Tenant lookups served from cache", tenantCacheHits.Load())
	writeCounter(&buf, "tenant_cache_misses_total", "Tenant lookups loaded from the store", tenantCacheMisses.Load())
	writeCounter(&buf, "artifact_regenerations_total", "Artifacts re-rendered after a delivery cache miss", artifactRegenerated.Load())
	writeCounter(&buf, "dispatch_jobs_received_total", "Queued send jobs received", dispatchJobsReceived.Load())
	writeCounter(&buf, "dispatch_jobs_failed_total", "Queued send jobs failed", dispatchJobsFailed.Load())
	writeCounter(&buf, "dispatch_jobs_completed_total", "Queued send jobs completed", dispatchJobsDone.Load())
	writeCounter(&buf, "dispatch_jobs_deleted_unrecoverable_total", "Queued send jobs deleted without retry", dispatchJobsDropped.Load())
	writeCounterVec(&buf, "documents_rendered_total", "Documents rendered", documentsRendered)
	writeCounterVec(&buf, "render_failures_total", "Render failures by step", renderFailures)
	writeCounterVec(&buf, "deliveries_total", "Delivery attempts by status", deliveries)
	writeCounterVec(&buf, "http_requests_total", "HTTP requests by status class", httpRequests)
	writeHistogram(&buf, "render_duration_ms", "Render duration in milliseconds", renderDuration.Snapshot())
	return buf.String()
}

type counterVec struct {
	label  string
	mu     sync.Mutex
	values map[string]uint64
}

func newCounterVec(label string) *counterVec {
	return &counterVec{label: label, values: make(map[string]uint64)}
}

func (v *counterVec) Inc(value string) {
	v.mu.Lock()
	v.values[value]++
	v.mu.Unlock()
}

func (v *counterVec) snapshot() ([]string, map[string]uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	keys := make([]string, 0, len(v.values))
	out := make(map[string]uint64, len(v.values))
	for k, n := range v.values {
		keys = append(keys, k)
		out[k] = n
	}
	sort.Strings(keys)
	return keys, out
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe records value in the first bucket that holds it; cumulative counts
// are computed at render time.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeCounterVec(buf *bytes.Buffer, name, help string, v *counterVec) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys, values := v.snapshot()
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, v.label, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// Since returns the milliseconds elapsed since start.
func Since(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
