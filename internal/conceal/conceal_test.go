package conceal

import "testing"

func TestConcealmentSize(t *testing.T) {
	cases := []struct {
		in   uint64
		want uint64
	}{
		{0, 16},
		{1, 16},
		{128, 16},
		{256, 16},
		{1024, 16},
		{1536, 16},
		{2 * 1024, 32},
		{128 * 1024, 2048},
		{1024, 1024 / 64},
		{1024 * 1024, 1024 * 1024 / 64},
		{1024*1024*1024 - 1, 1024 * 1024 * 1024 / 128},
		{1024 * 1024 * 1024, 1024 * 1024 * 1024 / 64},
		{1024*1024*1024 + 1, 1024 * 1024 * 1024 / 64},
		{1024*1024*1024 + 1024*1024, 1024 * 1024 * 1024 / 64},
	}
	for _, c := range cases {
		if got := ConcealmentSize(c.in); got != c.want {
			t.Errorf("ConcealmentSize(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSize(t *testing.T) {
	cases := []struct {
		in   uint64
		want uint64
	}{
		{0, 16},
		{1, 16},
		{128, 128},
		{256, 256},
		{1024, 1024},
		{1025, 1024 + 16},
		{1536, 1536},
		{2 * 1024, 2 * 1024},
		{2*1024 + 1, 2*1024 + 32},
		{1024*1024*1024 - 1, 1024 * 1024 * 1024},
		{1024 * 1024 * 1024, 1024 * 1024 * 1024},
		{1024*1024*1024 + 1, 1024*1024*1024 + 1024*1024*1024/64},
		{1024*1024*1024 + 1024*1024, 1024*1024*1024 + 1024*1024*1024/64},
	}
	for _, c := range cases {
		if got := Size(c.in); got != c.want {
			t.Errorf("Size(%d) = %d, want %d", c.in, got, c.want)
		}
		if s := Size(c.in); s < c.in {
			t.Errorf("Size(%d) = %d is smaller than input", c.in, s)
		}
	}
}
