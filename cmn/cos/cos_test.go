package cos

import "testing"

func TestAlignUp(t *testing.T) {
	cases := []struct{ size, gran, want int64 }{
		{0, 64, 0},
		{1, 64, 64},
		{64, 64, 64},
		{65, 64, 128},
		{100, 1, 100},
		{100, 0, 100},
	}
	for _, c := range cases {
		if got := AlignUp(c.size, c.gran); got != c.want {
			t.Fatalf("AlignUp(%d,%d) = %d, want %d", c.size, c.gran, got, c.want)
		}
	}
}

func TestDivCeil(t *testing.T) {
	cases := []struct{ a, b, want int64 }{
		{10, 5, 2},
		{11, 5, 3},
		{1, 5, 1},
		{0, 5, 0},
	}
	for _, c := range cases {
		if got := DivCeil(c.a, c.b); got != c.want {
			t.Fatalf("DivCeil(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
