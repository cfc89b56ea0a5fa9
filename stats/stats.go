// Package stats turns the captured output of a protocol binary into a
// throughput figure. Everything here is pure; nothing touches processes.
package stats

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Sentinel is the leading token of a measurement line.
const Sentinel = "STATS"

const separator = ","

// Sample is one self-reported throughput value in Mbps.
type Sample float64

// Extraction is the result of scanning one output stream.
type Extraction struct {
	Samples []Sample
	// Malformed counts sentinel lines whose value field did not parse.
	Malformed int
}

// ExtractSamples returns the samples of every line of the form
// "STATS,<value>[,...]". Other lines are ignored.
func ExtractSamples(raw []byte) []Sample {
	return Extract(raw).Samples
}

// Extract is ExtractSamples that also counts malformed sentinel lines.
func Extract(raw []byte) Extraction {
	var ex Extraction

	// Lines of any length are walked in place; a huge noise line must
	// not hide the samples after it.
	for rest := raw; len(rest) > 0; {
		var line []byte
		line, rest, _ = bytes.Cut(rest, []byte("\n"))
		line = bytes.TrimRight(line, "\r")

		v, ok := bytes.CutPrefix(line, []byte(Sentinel+separator))
		if !ok {
			continue
		}

		field, _, _ := strings.Cut(string(v), separator)

		f, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			ex.Malformed++
			continue
		}

		ex.Samples = append(ex.Samples, Sample(f))
	}

	return ex
}

// Summarize returns the arithmetic mean of samples, or 0 when there
// are none. A trial that produced no samples therefore reads as zero
// throughput.
func Summarize(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}

	return sum / float64(len(samples))
}

// Summary describes the distribution of one trial's samples.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P99   float64 `json:"p99"`
}

// Percentiles are tracked in kbps, 1 kbps to 1 Tbps, 3 significant figures.
const (
	kbpsPerMbps = 1000
	maxKbps     = int64(1e9)
)

// Describe computes a Summary. Mean is exact; percentiles come from an
// HDR histogram and carry its precision.
func Describe(samples []Sample) Summary {
	s := Summary{Count: len(samples), Mean: Summarize(samples)}
	if len(samples) == 0 {
		return s
	}

	h := hdrhistogram.New(1, maxKbps, 3)

	s.Min = float64(samples[0])
	s.Max = float64(samples[0])

	for _, v := range samples {
		s.Min = math.Min(s.Min, float64(v))
		s.Max = math.Max(s.Max, float64(v))

		kbps := int64(math.Round(float64(v) * kbpsPerMbps))
		kbps = min(max(kbps, 1), maxKbps)
		_ = h.RecordValue(kbps) // clamped into range above
	}

	s.P50 = float64(h.ValueAtQuantile(50)) / kbpsPerMbps
	s.P90 = float64(h.ValueAtQuantile(90)) / kbpsPerMbps
	s.P99 = float64(h.ValueAtQuantile(99)) / kbpsPerMbps

	return s
}
