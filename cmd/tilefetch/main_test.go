package main

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestParseBBox(t *testing.T) {
	b, err := parseBBox("5, 45,10.5,48")
	if err != nil {
		t.Fatalf("parseBBox: %v", err)
	}
	want := orb.Bound{Min: orb.Point{5, 45}, Max: orb.Point{10.5, 48}}
	if b != want {
		t.Errorf("got %v, want %v", b, want)
	}

	for _, s := range []string{"1,2,3", "a,b,c,d", "10,0,5,1"} {
		if _, err := parseBBox(s); err == nil {
			t.Errorf("parseBBox(%q) should fail", s)
		}
	}
}
