package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
)

// Handler exposes every registered series plus Go process metrics in Prometheus text format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		vm.WritePrometheus(w, true)
	})
}

func FeedServed(items int) {
	vm.GetOrCreateCounter("pulse_feeds_served_total").Inc()
	vm.GetOrCreateHistogram("pulse_feed_items").Update(float64(items))
}

func FeedItem(sourceType string) {
	vm.GetOrCreateCounter(series("pulse_feed_items_total", "type", sourceType)).Inc()
}

func FeedSourceFailed(source string) {
	vm.GetOrCreateCounter(series("pulse_feed_source_errors_total", "source", source)).Inc()
}

func Submission(sourceType, outcome string) {
	vm.GetOrCreateCounter(series("pulse_submissions_total", "type", sourceType, "outcome", outcome)).Inc()
}

func Trigger(kind, outcome string) {
	vm.GetOrCreateCounter(series("pulse_triggers_total", "kind", kind, "outcome", outcome)).Inc()
}

func Swept(table string, expired, purged int64) {
	vm.GetOrCreateCounter(series("pulse_sweep_expired_total", "table", table)).Add(int(expired))
	vm.GetOrCreateCounter(series("pulse_sweep_purged_total", "table", table)).Add(int(purged))
}

func SweepDuration(start time.Time) {
	vm.GetOrCreateHistogram("pulse_sweep_duration_seconds").UpdateDuration(start)
}

func series(name string, labelPairs ...string) string {
	if len(labelPairs) == 0 || len(labelPairs)%2 != 0 {
		return name
	}
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteString("{")
	for i := 0; i < len(labelPairs); i += 2 {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "%s=%q", labelPairs[i], escapeLabelValue(labelPairs[i+1]))
	}
	sb.WriteString("}")
	return sb.String()
}

func escapeLabelValue(v string) string {
	v = strings.ReplaceAll(v, "\n", " ")
	return strings.ReplaceAll(v, `"`, `'`)
}
