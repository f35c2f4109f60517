package fofs

import "testing"

func TestCellFilePath(t *testing.T) {
	got := CellFilePath("/var/lib/exastash/pile1", 7, 12345)
	want := "/var/lib/exastash/pile1/7/12345"
	if got != want {
		t.Errorf("CellFilePath = %q, want %q", got, want)
	}
}
