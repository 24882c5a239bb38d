package paint

import (
	"testing"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/region"
)

func TestBufferRingAges(t *testing.T) {
	r := newBufferRing(2)
	want := []int{0, 0, 2, 2, 2}
	for i, w := range want {
		if got := r.age(); got != w {
			t.Fatalf("frame %d: expected age %d, got %d", i, w, got)
		}
		r.present()
	}

	r.invalidate()
	if got := r.age(); got != 0 {
		t.Fatalf("expected undefined contents after invalidate, got age %d", got)
	}
}

func TestBufferRingDefaultsToTwoBuffers(t *testing.T) {
	r := newBufferRing(0)
	if len(r.painted) != DefaultBackBuffers {
		t.Fatalf("expected %d buffers, got %d", DefaultBackBuffers, len(r.painted))
	}
}

func TestRepaintArea(t *testing.T) {
	screen := region.R(0, 0, 100, 100)
	a := region.R(0, 0, 10, 10)
	b := region.R(50, 50, 10, 10)

	roster := compositor.NewFrameRoster(screen, 4, nil)
	roster.IncrementFrameAges()
	roster.DirtyAreaOnCurrentFrame(region.FromRect(a))
	roster.IncrementFrameAges()
	roster.DirtyAreaOnCurrentFrame(region.FromRect(b))

	cases := []struct {
		name   string
		age    int
		roster *compositor.FrameRoster
		mask   compositor.DamageMask
		damage region.Region
		want   region.Region
	}{
		{name: "full damage", age: 2, roster: roster, mask: compositor.MaskAll, want: region.FromRect(screen)},
		{name: "undefined buffer", age: 0, roster: roster, mask: compositor.MaskRegion, want: region.FromRect(screen)},
		{name: "one frame old", age: 1, roster: roster, mask: compositor.MaskRegion, damage: region.FromRect(b), want: region.FromRect(b)},
		{name: "two frames old", age: 2, roster: roster, mask: compositor.MaskRegion, damage: region.FromRect(b), want: region.New(a, b)},
		{name: "no history", age: 2, mask: compositor.MaskRegion, damage: region.FromRect(b), want: region.FromRect(b)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := repaintArea(tc.age, tc.roster, tc.mask, tc.damage, screen)
			if !got.Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
