package emoji

import (
	"strings"
	"testing"
)

func TestTokenizeRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"plain text",
		"hello :wave: friend",
		"<:wave:123> and <a:dance:456>",
		"broken <:wave:> <a:x> <:: :: :a b:",
		"time is 10:30:45",
		":wave::pog:",
		"<<:wave:1>>",
	}
	for _, in := range inputs {
		var b strings.Builder
		for _, seg := range tokenize(in) {
			b.WriteString(seg.raw)
		}
		if b.String() != in {
			t.Errorf("tokenize(%q) reassembled to %q", in, b.String())
		}
	}
}

func TestTokenizeKinds(t *testing.T) {
	segs := tokenize("hi <a:dance:456> :wave:!")
	var kinds []segmentKind
	for _, s := range segs {
		kinds = append(kinds, s.kind)
	}
	want := []segmentKind{segLiteral, segCanonical, segLiteral, segBare, segLiteral}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got: %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got: %v", want, kinds)
		}
	}
	if segs[1].name != "dance" || segs[1].id != "456" || !segs[1].animated {
		t.Fatalf("unexpected canonical segment: %+v", segs[1])
	}
}

func TestRewrite(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		want      string
		wantCount int
	}{
		{"bare known", "hello :wave: friend", "hello <:wave:123> friend", 1},
		{"bare case-insensitive", ":WAVE:", "<:wave:123>", 1},
		{"animated", ":dance:", "<a:dance:456>", 0},
		{"unknown bare", "hello :unknownthing: friend", "hello :unknownthing: friend", 0},
		{"too short", ":w:", ":w:", 0},
		{"too long", ":" + strings.Repeat("a", 33) + ":", ":" + strings.Repeat("a", 33) + ":", 0},
		{"canonical passthrough", "<:wave:123>", "<:wave:123>", 1},
		{"canonical unknown", "<:ghost:999>", "<:ghost:999>", 0},
		{"canonical foreign id", "foreign <:wave:999>", "foreign <:wave:999>", 0},
		{"canonical wrong animated marker", "<a:wave:123>", "<a:wave:123>", 0},
		{"no colons", "just text", "just text", 0},
		{"twice", ":wave: :wave:", "<:wave:123> <:wave:123>", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCache(t, nil, 0)
			c.IngestKnownSymbols("g", []Symbol{
				{Name: "wave", ID: "123"},
				{Name: "dance", ID: "456", Animated: true},
			})

			got := c.Rewrite(tt.in, false)
			if got != tt.want {
				t.Fatalf("Rewrite(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if n := c.Snapshot()["wave"]; n != tt.wantCount {
				t.Fatalf("expected wave count %d, got: %d", tt.wantCount, n)
			}
		})
	}
}

// TestRewriteUnknownCreatesNoEntry verifies unknown names never enter the ranking table.
func TestRewriteUnknownCreatesNoEntry(t *testing.T) {
	c := newTestCache(t, nil, 0)
	c.Rewrite("hello :unknownthing: friend", false)
	if _, ok := c.Snapshot()["unknownthing"]; ok {
		t.Fatal("unknown emoji must not get a ranking entry")
	}
}

// TestRewriteSelf verifies the bot's own text is rewritten but not counted.
func TestRewriteSelf(t *testing.T) {
	c := newTestCache(t, nil, 0)
	c.IngestKnownSymbols("g", []Symbol{{Name: "wave", ID: "123"}})

	got := c.Rewrite("bye :wave:", true)
	if got != "bye <:wave:123>" {
		t.Fatalf("unexpected rewrite: %q", got)
	}
	if n := c.Snapshot()["wave"]; n != 0 {
		t.Fatalf("self-attributed rewrite counted %d uses", n)
	}
}

// TestRewriteIdempotent verifies rewriting already-rewritten text changes nothing.
func TestRewriteIdempotent(t *testing.T) {
	c := newTestCache(t, nil, 0)
	c.IngestKnownSymbols("g", []Symbol{{Name: "wave", ID: "123"}, {Name: "dance", ID: "456", Animated: true}})

	for _, in := range []string{"hi :wave: and :dance: :nope:", "x<:wave:123>y", "::wave::"} {
		once := c.Rewrite(in, true)
		twice := c.Rewrite(once, true)
		if once != twice {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestValidName(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ok", true},
		{"with_underscore_9", true},
		{"a", false},
		{strings.Repeat("x", 32), true},
		{strings.Repeat("x", 33), false},
		{"has-dash", false},
		{"émoji", false},
	}
	for _, tt := range tests {
		if got := ValidName(tt.in); got != tt.want {
			t.Errorf("ValidName(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
