// Package lineproto renders InfluxDB line-protocol records.
package lineproto

import (
	"strconv"
	"strings"

	"github.com/influxpipe/influxpipe/internal/metric"
)

// KV is one tag or field pair. Pairs render in slice order.
type KV struct {
	Key   string
	Value string
}

// EncodeField encodes a sample value as a line-protocol field value.
// Strings are double-quoted without internal escaping, booleans render
// as bare true/false tokens, integers carry the `i` suffix that marks
// an integer field, and floats render plainly. The boolean case must
// stay ahead of the integer case: a boolean field must never pick up
// the integer suffix.
func EncodeField(v metric.Value) string {
	switch v.Kind() {
	case metric.KindString:
		return `"` + v.Str() + `"`
	case metric.KindBool:
		return strconv.FormatBool(v.Bool())
	case metric.KindInt:
		return strconv.FormatInt(v.Int(), 10) + "i"
	case metric.KindFloat:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	default:
		return ""
	}
}

// EncodeTag encodes a sample value as a line-protocol tag value.
// Spaces in string values are escaped with a backslash; other kinds
// stringify as-is.
func EncodeTag(v metric.Value) string {
	if v.Kind() == metric.KindString {
		return strings.ReplaceAll(v.Str(), " ", `\ `)
	}

	return v.Text()
}

// Render produces one line-protocol record:
//
//	<family>,<tag1>=<v1>,... <field1>=<enc1>,... <timestamp>
//
// The timestamp segment is omitted when timestampNs is nil.
func Render(family string, tags, fields []KV, timestampNs *int64) string {
	var b strings.Builder

	b.WriteString(family)

	for _, t := range tags {
		b.WriteByte(',')
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}

	b.WriteByte(' ')

	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}

		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(f.Value)
	}

	if timestampNs != nil {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(*timestampNs, 10))
	}

	return b.String()
}
