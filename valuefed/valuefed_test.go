package valuefed

import (
	"testing"

	"github.com/helioscore/cosim/ticks"
)

// TestChangeDetectionPerSubscriberThreshold mirrors scenario S2 for
// real: two different Inputs subscribed to the same Publication, one
// with the default (zero) threshold and one with its own
// MinimumChange=0.1, must see different update patterns from the same
// sequence of Publish calls on the same publication. The default-delta
// input is delivered at every step except the bitwise-unchanged repeat
// at t=3; the 0.1-delta input additionally suppresses the 0.09 step at
// t=1, but not t=2's step of 0.19 from the immediately preceding
// publish call (a non-strict "<=" test against the previous Publish
// call's value, not the last value this input itself was delivered).
func TestChangeDetectionPerSubscriberThreshold(t *testing.T) {
	m := NewManager()
	p, err := m.RegisterPublication("P1", "double", "")
	if err != nil {
		t.Fatal(err)
	}
	defaultIn, err := m.RegisterInput("I1", "double", "", AggNoOp)
	if err != nil {
		t.Fatal(err)
	}
	deltaIn, err := m.RegisterInput("I2", "double", "", AggNoOp)
	if err != nil {
		t.Fatal(err)
	}
	deltaIn.SetMinimumChange(0.1)
	for _, in := range []*Input{defaultIn, deltaIn} {
		if err := m.AddTarget(in, p.Handle, ""); err != nil {
			t.Fatal(err)
		}
		p.LinkTarget(in.Handle)
	}

	seq := []float64{23.7, 23.61, 23.8, 23.8}
	wantDefaultUpdated := []bool{true, true, true, false}
	wantDeltaUpdated := []bool{true, false, true, false}
	for i, v := range seq {
		m.SetGrantedTime(ticks.Time(i))
		m.Publish(p, v)
		if got := m.IsUpdated(defaultIn); got != wantDefaultUpdated[i] {
			t.Fatalf("t=%d: default-delta input updated=%v, want %v", i, got, wantDefaultUpdated[i])
		}
		if got := m.IsUpdated(deltaIn); got != wantDeltaUpdated[i] {
			t.Fatalf("t=%d: 0.1-delta input updated=%v, want %v", i, got, wantDeltaUpdated[i])
		}
		// IsUpdated doesn't clear the flag (only GetValue does), so reset
		// explicitly between steps by draining via GetValue.
		if wantDefaultUpdated[i] {
			if _, err := m.GetValue(defaultIn); err != nil {
				t.Fatal(err)
			}
		}
		if wantDeltaUpdated[i] {
			if _, err := m.GetValue(deltaIn); err != nil {
				t.Fatal(err)
			}
		}
	}
}

// TestMultiInputSum mirrors scenario S3.
func TestMultiInputSum(t *testing.T) {
	m := NewManager()
	p1, _ := m.RegisterPublication("P1", "double", "")
	p2, _ := m.RegisterPublication("P2", "vector", "")
	p3, _ := m.RegisterPublication("P3", "double", "")
	in, err := m.RegisterInput("I", "double", "", AggSum)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []*Publication{p1, p2, p3} {
		if err := m.AddTarget(in, p.Handle, ""); err != nil {
			t.Fatal(err)
		}
		p.LinkTarget(in.Handle)
	}

	m.SetGrantedTime(0)
	m.Publish(p1, 2.0)
	v, _ := m.GetValue(in)
	if v != 2.0 {
		t.Fatalf("t=0: got %v, want 2.0", v)
	}

	m.SetGrantedTime(1)
	m.Publish(p3, 1.0)
	m.Publish(p2, []float64{3, 4, 5, 2})
	v, _ = m.GetValue(in)
	if v != 17.0 {
		t.Fatalf("t=1: got %v, want 17.0", v)
	}

	m.SetGrantedTime(2)
	m.Publish(p3, 6.0)
	m.Publish(p2, []float64{3, 4})
	m.Publish(p1, 5.0)
	v, _ = m.GetValue(in)
	if v != 18.0 {
		t.Fatalf("t=2: got %v, want 18.0", v)
	}
}

func TestComplexRoundTrip(t *testing.T) {
	c, err := ParseComplex("3.14159+2j")
	if err != nil {
		t.Fatal(err)
	}
	if c.Re != 3.14159 || c.Im != 2 {
		t.Fatalf("got %+v", c)
	}
	d, err := CoerceToDouble(c)
	if err != nil {
		t.Fatal(err)
	}
	if d != c.Magnitude() {
		t.Fatalf("got %v, want %v", d, c.Magnitude())
	}
}
