package stats

import (
	"math"
	"strings"
	"testing"
)

func TestExtractSamples(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []Sample
	}{
		{
			name: "empty",
			raw:  "",
			want: nil,
		},
		{
			name: "only sentinel lines",
			raw:  "STATS,10.0\nSTATS,20.0\nSTATS,30.0\n",
			want: []Sample{10, 20, 30},
		},
		{
			name: "interleaved diagnostics",
			raw: "This is main receiver\nset error 0.01\n" +
				"STATS,1.5,12000\nwindow advanced\nSTATS,2.5,13000\n",
			want: []Sample{1.5, 2.5},
		},
		{
			name: "crlf line endings",
			raw:  "STATS,4\r\nnoise\r\nSTATS,6\r\n",
			want: []Sample{4, 6},
		},
		{
			name: "no trailing newline",
			raw:  "STATS,7.25",
			want: []Sample{7.25},
		},
		{
			name: "sentinel must lead the line",
			raw:  " STATS,1\n[STATS],2\nSTATSX,3\nSTATS 4\n",
			want: nil,
		},
		{
			name: "malformed value is skipped",
			raw:  "STATS,abc\nSTATS,\nSTATS,NaN\nSTATS,9\n",
			want: []Sample{9},
		},
		{
			name: "exponent form",
			raw:  "STATS,1e3\n",
			want: []Sample{1000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSamples([]byte(tt.raw))
			if len(got) != len(tt.want) {
				t.Fatalf("got %d samples %v, want %d %v",
					len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sample[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExtractCountsMalformed(t *testing.T) {
	ex := Extract([]byte("STATS,x\nSTATS,1\nother,2\nSTATS,,3\n"))

	if len(ex.Samples) != 1 {
		t.Errorf("samples = %d, want 1", len(ex.Samples))
	}
	if ex.Malformed != 2 {
		t.Errorf("malformed = %d, want 2", ex.Malformed)
	}
}

func TestExtractIndependentOfNoise(t *testing.T) {
	const k = 5

	for _, m := range []int{0, 1, 10, 100} {
		var b strings.Builder
		for i := 0; i < k; i++ {
			for j := 0; j < m; j++ {
				b.WriteString("diagnostic line, 42\n")
			}
			b.WriteString("STATS,100\n")
		}
		for j := 0; j < m; j++ {
			b.WriteString("trailing noise\n")
		}

		if got := len(ExtractSamples([]byte(b.String()))); got != k {
			t.Errorf("m=%d: got %d samples, want %d", m, got, k)
		}
	}
}

func TestExtractSurvivesHugeLines(t *testing.T) {
	huge := strings.Repeat("x", 2<<20)
	raw := "STATS,10\n" + huge + "\nSTATS,20\n" + huge + "\rSTATS,99\nSTATS,30\n"

	got := ExtractSamples([]byte(raw))
	want := []Sample{10, 20, 30}

	if len(got) != len(want) {
		t.Fatalf("got %d samples %v, want %v", len(got), got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
		want    float64
	}{
		{"nil", nil, 0},
		{"empty", []Sample{}, 0},
		{"single", []Sample{42}, 42},
		{"three", []Sample{10, 20, 30}, 20},
		{"reordered", []Sample{30, 10, 20}, 20},
		{"fractional", []Sample{1.5, 2.5}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summarize(tt.samples); got != tt.want {
				t.Errorf("Summarize(%v) = %v, want %v", tt.samples, got, tt.want)
			}
		})
	}
}

func TestSummarizeZeroOnlyWhenEmpty(t *testing.T) {
	// All-zero samples also average to zero; non-empty positive input never does.
	if got := Summarize([]Sample{0.001}); got == 0 {
		t.Error("non-empty positive samples summarized to 0")
	}
}

func TestDescribe(t *testing.T) {
	samples := []Sample{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	s := Describe(samples)

	if s.Count != 10 {
		t.Errorf("count = %d, want 10", s.Count)
	}
	if s.Mean != 55 {
		t.Errorf("mean = %v, want 55", s.Mean)
	}
	if s.Min != 10 || s.Max != 100 {
		t.Errorf("min/max = %v/%v, want 10/100", s.Min, s.Max)
	}
	if math.Abs(s.P50-50) > 0.1 {
		t.Errorf("p50 = %v, want ~50", s.P50)
	}
	if math.Abs(s.P99-100) > 0.1 {
		t.Errorf("p99 = %v, want ~100", s.P99)
	}
}

func TestDescribeEmpty(t *testing.T) {
	if s := Describe(nil); s != (Summary{}) {
		t.Errorf("Describe(nil) = %+v, want zero value", s)
	}
}
