package pathvalidate

import "testing"

func TestCheckSegmentAllows(t *testing.T) {
	for _, s := range []string{"filename", "filename.ext", "with spaces", "multiple.ext.ext"} {
		if err := CheckSegment(s); err != nil {
			t.Errorf("CheckSegment(%q) = %v, want nil", s, err)
		}
	}
}

func TestCheckSegmentRejectsSpecialCharacters(t *testing.T) {
	if err := CheckSegment("with CR\r"); err == nil {
		t.Fatal("expected error for embedded carriage return")
	}
	invalidChars := []rune{'"', '*', ':', '<', '>', '?', '\\', '|'}
	for c := rune(0); c < 0x1F; c++ {
		invalidChars = append(invalidChars, c)
	}
	for _, c := range invalidChars {
		if err := CheckSegment(string(c)); err == nil {
			t.Errorf("CheckSegment(%q) = nil, want error", c)
		}
	}
}

func TestCheckSegmentRejectsBadEndings(t *testing.T) {
	if err := CheckSegment("ends with dot."); err == nil {
		t.Fatal("expected error for trailing dot")
	}
	if err := CheckSegment("ends with space "); err == nil {
		t.Fatal("expected error for trailing space")
	}
}

func TestCheckSegmentRejectsDeviceNames(t *testing.T) {
	devices := []string{
		"AUX", "CON", "NUL", "PRN",
		"COM0", "COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
		"LPT0", "LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
	}
	for _, device := range devices {
		if err := CheckSegment(device); err == nil {
			t.Errorf("CheckSegment(%q) = nil, want error", device)
		}
		if err := CheckSegment(device + ".c"); err == nil {
			t.Errorf("CheckSegment(%q) = nil, want error", device+".c")
		}
		if err := CheckSegment(device + ".c.old"); err == nil {
			t.Errorf("CheckSegment(%q) = nil, want error", device+".c.old")
		}
		if err := CheckSegment(device + device); err != nil {
			t.Errorf("CheckSegment(%q) = %v, want nil", device+device, err)
		}
		if err := CheckSegment("c." + device); err != nil {
			t.Errorf("CheckSegment(%q) = %v, want nil", "c."+device, err)
		}
	}
}
