// Package pipeline implements the grouping table that folds
// same-timestamp samples sharing an identity into multi-field records.
package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/influxpipe/influxpipe/internal/definitions"
	"github.com/influxpipe/influxpipe/internal/lineproto"
	"github.com/influxpipe/influxpipe/internal/metric"
	"github.com/influxpipe/influxpipe/internal/telemetry"
)

// group is one open multi-field record: samples for the same identity
// and timestamp merge into it until a sample with a different
// timestamp closes it. Field values are stored pre-encoded; the field
// set only grows while the group is open and freezes at close.
type group struct {
	timestampNs int64
	tags        []lineproto.KV
	fieldKeys   []string
	fields      map[string]string
	lastUpdate  time.Time
}

type bucketKey struct {
	source string
	family string
}

// Table is the central aggregator. Per (source, family) bucket it
// keeps an insertion-ordered list of open groups keyed by tag set; at
// most one open group exists per distinct tag set, and at most one
// group closes per incoming sample.
//
// The original host invoked ingestion from a single-threaded callback;
// here ingest may be called from concurrent request handlers, so the
// buckets are guarded by a mutex.
type Table struct {
	log     logrus.FieldLogger
	defs    *definitions.Store
	queue   *Queue
	enabled func() bool
	health  *telemetry.Metrics

	mu      sync.Mutex
	buckets map[bucketKey][]*group
}

// NewTable creates a grouping table feeding the given queue. The
// enabled func is consulted per sample so config reloads take effect
// immediately.
func NewTable(
	log logrus.FieldLogger,
	defs *definitions.Store,
	queue *Queue,
	enabled func() bool,
	health *telemetry.Metrics,
) *Table {
	return &Table{
		log:     log.WithField("component", "pipeline"),
		defs:    defs,
		queue:   queue,
		enabled: enabled,
		health:  health,
		buckets: make(map[bucketKey][]*group),
	}
}

// Ingest folds one sample into the table. It never returns an error
// and never panics outward: every fault degrades to drop-and-log.
func (t *Table) Ingest(sample metric.Sample) {
	if t.health != nil {
		t.health.SamplesReceived.Inc()
	}

	if !t.enabled() {
		t.drop("disabled")

		return
	}

	if !t.defs.Loaded() {
		// Expected before the definition loader succeeds.
		t.drop("definitions_not_loaded")

		return
	}

	def, ok := t.defs.Lookup(sample.Source, sample.Family, sample.Name)
	if !ok {
		// Unknown metrics are ignored, not errors.
		t.drop("unknown_metric")

		return
	}

	tags, err := buildTags(sample, def)
	if err != nil {
		t.log.WithError(err).WithFields(logrus.Fields{
			"source": sample.Source,
			"type":   sample.Family,
			"metric": sample.Name,
		}).Warn("Dropping sample")
		t.drop("bad_sample")

		return
	}

	timestampNs := sample.Timestamp * int64(time.Second)
	encoded := lineproto.EncodeField(sample.Value)
	key := bucketKey{
		source: strings.ToLower(sample.Source),
		family: sample.Family,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.buckets[key]

	for i, g := range entries {
		if !tagsEqual(g.tags, tags) {
			continue
		}

		if g.timestampNs == timestampNs {
			// Same identity and timestamp: merge.
			if _, exists := g.fields[sample.Name]; !exists {
				g.fieldKeys = append(g.fieldKeys, sample.Name)
			}

			g.fields[sample.Name] = encoded
			g.lastUpdate = time.Now()

			return
		}

		// Same identity, new timestamp: the old group is complete.
		t.close(key.family, g)

		entries = append(entries[:i], entries[i+1:]...)
		t.buckets[key] = entries

		break
	}

	t.buckets[key] = append(entries, &group{
		timestampNs: timestampNs,
		tags:        tags,
		fieldKeys:   []string{sample.Name},
		fields:      map[string]string{sample.Name: encoded},
		lastUpdate:  time.Now(),
	})

	if t.health != nil {
		t.health.OpenGroups.Inc()
	}
}

// FlushIdle closes every open group that has not received a sample for
// at least maxAge. Identities that stop emitting would otherwise hold
// their last group open forever. Returns the number of groups closed.
func (t *Table) FlushIdle(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	closed := 0

	t.mu.Lock()
	defer t.mu.Unlock()

	for key, entries := range t.buckets {
		kept := entries[:0]

		for _, g := range entries {
			if g.lastUpdate.After(cutoff) {
				kept = append(kept, g)

				continue
			}

			t.close(key.family, g)
			closed++
		}

		if len(kept) == 0 {
			delete(t.buckets, key)

			continue
		}

		t.buckets[key] = kept
	}

	if closed > 0 {
		t.log.WithField("groups", closed).Debug("Flushed idle groups")
	}

	return closed
}

// close renders the group and hands it to the queue. Caller holds the
// table mutex.
func (t *Table) close(family string, g *group) {
	fields := make([]lineproto.KV, 0, len(g.fieldKeys))
	for _, name := range g.fieldKeys {
		fields = append(fields, lineproto.KV{Key: name, Value: g.fields[name]})
	}

	ts := g.timestampNs
	entry := lineproto.Render(family, g.tags, fields, &ts)

	t.queue.Push(entry)

	if t.health != nil {
		t.health.GroupsClosed.Inc()
		t.health.OpenGroups.Dec()
		t.health.QueueLength.Set(float64(t.queue.Len()))
	}
}

func (t *Table) drop(reason string) {
	if t.health != nil {
		t.health.SamplesDropped.WithLabelValues(reason).Inc()
	}
}

// buildTags derives the sample's identity tag set: the lowercased
// source under the fixed "type" key, then one pair per definition tag
// key read from the sample's attributes. A missing required attribute
// is a configuration fault.
func buildTags(sample metric.Sample, def definitions.Definition) ([]lineproto.KV, error) {
	tags := make([]lineproto.KV, 0, len(def.Tags)+1)
	tags = append(tags, lineproto.KV{
		Key:   "type",
		Value: strings.ToLower(sample.Source),
	})

	for _, key := range def.Tags {
		v, ok := sample.Attribute(key)
		if !ok {
			return nil, fmt.Errorf("sample is missing required tag %q", key)
		}

		tags = append(tags, lineproto.KV{Key: key, Value: lineproto.EncodeTag(v)})
	}

	return tags, nil
}

func tagsEqual(a, b []lineproto.KV) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
