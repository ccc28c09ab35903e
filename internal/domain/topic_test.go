package domain

import "testing"

func TestTopicID_Deterministic(t *testing.T) {
	a := TopicID(FieldLast, "SPY")
	for i := 0; i < 100; i++ {
		if got := TopicID(FieldLast, "SPY"); got != a {
			t.Fatalf("TopicID not deterministic: %d then %d", a, got)
		}
	}
}

func TestTopicID_Bounded(t *testing.T) {
	symbols := []string{"SPY", "QQQ", "/ES", ".SPY260320C500", "AAPL", ""}
	for _, sym := range symbols {
		for _, f := range []FieldKind{FieldLast, FieldGamma, FieldOpenInt, FieldImplVol} {
			id := TopicID(f, sym)
			if id < 0 || id >= topicSpace {
				t.Fatalf("TopicID(%s, %q) = %d out of range", f, sym, id)
			}
		}
	}
}

func TestTopicID_DistinguishesFieldAndSymbol(t *testing.T) {
	// Not a collision-freedom guarantee, just a sanity check that the pair
	// feeds the hash.
	if TopicID(FieldLast, "SPY") == TopicID(FieldBid, "SPY") &&
		TopicID(FieldLast, "QQQ") == TopicID(FieldBid, "QQQ") {
		t.Fatal("field kind does not influence topic id")
	}
}

func TestIsDerivative(t *testing.T) {
	cases := map[string]bool{
		".SPY260320C500":   true,
		"./ZNH26C110:XCBT": true,
		"SPY":              false,
		"/ES":              false,
		"":                 false,
	}
	for sym, want := range cases {
		if got := IsDerivative(sym); got != want {
			t.Errorf("IsDerivative(%q) = %v, want %v", sym, got, want)
		}
	}
}
