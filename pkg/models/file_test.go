package models

import "testing"

func TestDerivativePopulated(t *testing.T) {
	tests := []struct {
		status StageStatus
		want   bool
	}{
		{StageNotRun, false},
		{StageDone, true},
		{StageCached, true},
		{StageFailed, false},
	}

	for _, tt := range tests {
		d := Derivative{Size: 10, Status: tt.status}
		if got := d.Populated(); got != tt.want {
			t.Errorf("Populated() with status %q = %v; want %v", tt.status, got, tt.want)
		}
	}
}

func TestFileRecordSizeMB(t *testing.T) {
	r := FileRecord{Size: 666_000_000}
	if r.SizeMB() != 666 {
		t.Errorf("SizeMB() = %v; want 666", r.SizeMB())
	}
}
