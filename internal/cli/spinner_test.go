package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/typecensus/pkg/integrations/npm"
)

func newTestProbeSpinner(ctx context.Context) (*probeSpinner, *bytes.Buffer, *bytes.Buffer) {
	var status, out bytes.Buffer
	s := newProbeSpinner(ctx, "lodash", "@types/lodash")
	s.status, s.out = &status, &out
	return s, &status, &out
}

func TestProbeSpinnerAnimatesCanonicalName(t *testing.T) {
	s, status, _ := newTestProbeSpinner(context.Background())
	s.Start()
	time.Sleep(3 * s.style.FPS)
	s.Stop()

	if !strings.Contains(status.String(), "HEAD @types/lodash") {
		t.Errorf("status output %q does not name the declaration package", status.String())
	}
	if s.Interrupted() {
		t.Error("Stop should not count as an interruption")
	}
}

func TestProbeSpinnerFinish(t *testing.T) {
	tests := []struct {
		name    string
		probe   npm.Probe
		want    []string
		notWant string
	}{
		{
			name:    "found",
			probe:   npm.Probe{Package: "@types/lodash", Exists: true},
			want:    []string{iconSuccess, "lodash", "@types/lodash"},
			notWant: "cached",
		},
		{
			name:  "found in cache",
			probe: npm.Probe{Package: "@types/lodash", Exists: true, Cached: true},
			want:  []string{iconSuccess, "@types/lodash", "(cached)"},
		},
		{
			name:    "missing",
			probe:   npm.Probe{Package: "@types/lodash"},
			want:    []string{iconInfo, "@types/lodash not published"},
			notWant: iconSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, out := newTestProbeSpinner(context.Background())
			s.Start()
			s.finish(tt.probe)

			got := out.String()
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("verdict %q missing %q", got, w)
				}
			}
			if tt.notWant != "" && strings.Contains(got, tt.notWant) {
				t.Errorf("verdict %q should not contain %q", got, tt.notWant)
			}
		})
	}
}

func TestProbeSpinnerInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, _, _ := newTestProbeSpinner(ctx)
	s.Start()

	cancel()
	s.Stop()

	if !s.Interrupted() {
		t.Error("spinner should report the cancelled lookup")
	}
}

func TestProbeSpinnerStopIsIdempotent(t *testing.T) {
	s, _, _ := newTestProbeSpinner(context.Background())
	s.Start()
	s.Stop()
	s.Stop()
}
