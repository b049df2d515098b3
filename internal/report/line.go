// Package report delivers probe outcomes to their sinks: InfluxDB line
// protocol over HTTP and the human-readable log.
package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
)

// EncodeLine renders o as one InfluxDB line:
//
//	<measurement>,app=<app>,name=<test>,ret_code=<code|-1> value=1i,duration=<ms>i,
//	interval=<s>i,reason="...",routing_key="...",artifact_url="...",image_url="..." <ns>
//
// The returned slice ends with a newline.
func EncodeLine(measurement string, o outcome.Outcome) ([]byte, error) {
	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Nanosecond)
	if err := AppendLine(&enc, measurement, o); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

// AppendLine adds o to enc, so several outcomes can share one write.
func AppendLine(enc *lineprotocol.Encoder, measurement string, o outcome.Outcome) error {
	enc.StartLine(measurement)
	// Tags must be added in lexical key order.
	enc.AddTag("app", o.AppName)
	enc.AddTag("name", o.TestName)
	enc.AddTag("ret_code", strconv.Itoa(o.RetCode()))

	enc.AddField("value", lineprotocol.IntValue(1))
	enc.AddField("duration", lineprotocol.IntValue(o.Duration.Milliseconds()))
	enc.AddField("interval", lineprotocol.IntValue(ceilSeconds(o.Interval)))
	if o.KillFailed {
		enc.AddField("kill_failed", lineprotocol.BoolValue(true))
	}
	if o.Overrun {
		enc.AddField("overrun", lineprotocol.BoolValue(true))
	}
	for _, f := range []struct{ key, val string }{
		{"reason", o.Reason.String()},
		{"routing_key", o.RoutingKey},
		{"artifact_url", o.ArtifactURL},
		{"image_url", o.ImageURL},
	} {
		v, ok := lineprotocol.StringValue(f.val)
		if !ok {
			return fmt.Errorf("field %s: invalid string value %q", f.key, f.val)
		}
		enc.AddField(f.key, v)
	}
	enc.EndLine(o.Started)

	if err := enc.Err(); err != nil {
		return fmt.Errorf("encode outcome line: %w", err)
	}
	return nil
}

// ceilSeconds rounds d up to whole seconds, so a sub-second interval is
// never written as 0.
func ceilSeconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if d%time.Second > 0 {
		secs++
	}
	return secs
}
