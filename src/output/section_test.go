package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Microsecond, "<1ms"},
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30.0s"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.d); got != tt.want {
			t.Errorf("formatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestStatusIconPlain(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{StatusSuccess, "✓"},
		{StatusFailed, "✗"},
		{StatusCached, "⊘"},
		{StatusSkipped, "⊘"},
	}
	for _, tt := range tests {
		if got := StatusIcon(tt.status, false); got != tt.want {
			t.Errorf("StatusIcon(%q, false) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestSectionFrame(t *testing.T) {
	var sb strings.Builder
	sec := NewSection(&sb, "Assembly", 0, false)
	sec.Row("config %s", "machine.yml")
	sec.RowStatus("bundle", "boot-bundle.tar", StatusSuccess)
	sec.Close()

	out := sb.String()
	if !strings.Contains(out, "── Assembly ") {
		t.Errorf("missing header, got:\n%s", out)
	}
	if !strings.Contains(out, "│ config machine.yml") {
		t.Errorf("missing row, got:\n%s", out)
	}
	if !strings.Contains(out, "└") {
		t.Errorf("missing footer, got:\n%s", out)
	}
}

func TestWriteStageReport(t *testing.T) {
	dir := t.TempDir()

	stages := []StageOutcome{
		{Name: "context+image", Status: StatusSuccess, Elapsed: 2 * time.Second},
		{Name: "assembly", Status: StatusCached, Elapsed: 0},
		{Name: "sealing", Status: StatusFailed, Detail: "root hash mismatch", Output: "verity: mismatch at block 7", Elapsed: time.Second},
	}
	if err := WriteStageReport(dir, "verifiable-release", stages); err != nil {
		t.Fatalf("WriteStageReport: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "stages.xml"))
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	xml := string(data)

	if !strings.Contains(xml, `failures="1"`) {
		t.Errorf("expected one failure, got:\n%s", xml)
	}
	if !strings.Contains(xml, "root hash mismatch") {
		t.Errorf("failure message missing, got:\n%s", xml)
	}
	if !strings.Contains(xml, `<skipped message="cached"`) {
		t.Errorf("cached stage should be skipped, got:\n%s", xml)
	}
	if !strings.Contains(xml, "verity: mismatch at block 7") {
		t.Errorf("captured output missing, got:\n%s", xml)
	}
}
