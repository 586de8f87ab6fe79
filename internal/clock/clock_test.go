package clock

import (
	"testing"
	"time"
)

func TestManualAdvance(t *testing.T) {
	start := time.Date(2026, 2, 1, 9, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
	c := NewManual(start)

	if !c.Now().Equal(start) || c.Now().Location() != time.UTC {
		t.Fatalf("expected UTC start time, got %v", c.Now())
	}
	c.Advance(time.Hour)
	if got := c.Now().Sub(start); got != time.Hour {
		t.Fatalf("expected +1h, got %v", got)
	}
}

func TestSystemClockIsUTC(t *testing.T) {
	if loc := NewSystem().Now().Location(); loc != time.UTC {
		t.Fatalf("expected UTC, got %v", loc)
	}
}
