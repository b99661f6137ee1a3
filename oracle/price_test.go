package oracle

import (
	"testing"

	"github.com/openliquid/core-engine/engineerrors"
	"github.com/openliquid/core-engine/fixedpoint"
)

func TestBookSourceRequiresBookMid(t *testing.T) {
	o := New(60)
	o.Configure(1, ReferencePrice{Source: Book})

	if _, err := o.GetMark(1, 0, false, 100); !engineerrors.Is(err, engineerrors.NoPrice) {
		t.Fatalf("expected NoPrice, got %v", err)
	}

	mark, err := o.GetMark(1, fixedpoint.FromFloat(50), true, 100)
	if err != nil || mark != fixedpoint.FromFloat(50) {
		t.Fatalf("unexpected result: %v %v", mark, err)
	}
}

func TestExternalSourceStaleness(t *testing.T) {
	o := New(60)
	o.Configure(1, ReferencePrice{Source: External})
	if err := o.UpdateExternal(1, fixedpoint.FromFloat(50), 100); err != nil {
		t.Fatal(err)
	}

	if _, err := o.GetMark(1, 0, false, 200); !engineerrors.Is(err, engineerrors.StalePrice) {
		t.Fatalf("expected StalePrice at 100s past max age, got %v", err)
	}
}

func TestExternalSourceFresh(t *testing.T) {
	o := New(60)
	o.Configure(1, ReferencePrice{Source: External})
	if err := o.UpdateExternal(1, fixedpoint.FromFloat(50), 100); err != nil {
		t.Fatal(err)
	}
	mark, err := o.GetMark(1, 0, false, 160)
	if err != nil || mark != fixedpoint.FromFloat(50) {
		t.Fatalf("expected fresh external price at exactly max_age, got %v %v", mark, err)
	}
}

func TestWeightedAveragesWhenBothFresh(t *testing.T) {
	o := New(60)
	o.Configure(1, ReferencePrice{Source: Weighted})
	if err := o.UpdateExternal(1, fixedpoint.FromFloat(100), 100); err != nil {
		t.Fatal(err)
	}
	mark, err := o.GetMark(1, fixedpoint.FromFloat(102), true, 100)
	if err != nil {
		t.Fatal(err)
	}
	if mark != fixedpoint.FromFloat(101) {
		t.Fatalf("expected weighted average 101, got %v", mark)
	}
}

func TestWeightedFallsBackToBookMid(t *testing.T) {
	o := New(60)
	o.Configure(1, ReferencePrice{Source: Weighted})
	if err := o.UpdateExternal(1, fixedpoint.FromFloat(100), 1); err != nil {
		t.Fatal(err)
	}
	mark, err := o.GetMark(1, fixedpoint.FromFloat(102), true, 1000)
	if err != nil || mark != fixedpoint.FromFloat(102) {
		t.Fatalf("expected fallback to book mid when external is stale, got %v %v", mark, err)
	}
}

func TestWeightedFailsWithNeitherSource(t *testing.T) {
	o := New(60)
	o.Configure(1, ReferencePrice{Source: Weighted})
	if _, err := o.GetMark(1, 0, false, 1); !engineerrors.Is(err, engineerrors.NoPrice) {
		t.Fatalf("expected NoPrice, got %v", err)
	}
}

func TestUnconfiguredAssetNotFound(t *testing.T) {
	o := New(60)
	if _, err := o.GetMark(99, 0, false, 1); !engineerrors.Is(err, engineerrors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
