package motion

import "testing"

func TestVelocityFromMMPerMin(t *testing.T) {
	v := VelocityFromMMPerMin(1200)
	if got := MM(v); got < 19.99 || got > 20.01 {
		t.Fatalf("got %f mm/s, want ~20", got)
	}
	if got := MMPerMin(v); got < 1199.9 || got > 1200.1 {
		t.Fatalf("round trip got %f, want ~1200", got)
	}
}

func TestJerkFromMM(t *testing.T) {
	j := JerkFromMM(50000000)
	if got := JerkMM(j); got < 49999999 || got > 50000001 {
		t.Fatalf("got %f, want ~50000000", got)
	}
}

func TestLenFromMM(t *testing.T) {
	l := LenFromMM(12.5)
	if got := LenMM(l); got < 12.499 || got > 12.501 {
		t.Fatalf("got %f, want ~12.5", got)
	}
}
