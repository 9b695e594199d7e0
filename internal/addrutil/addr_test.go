package addrutil

import "testing"

func TestFormatPadsAndLowercases(t *testing.T) {
	got := Format("0xDEAD")
	if len(got) != AddrLen {
		t.Fatalf("expected length %d, got %d (%s)", AddrLen, len(got), got)
	}
	want := "0x000000000000000000000000000000000000dead"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestFormatIdempotent(t *testing.T) {
	x := "0xAbCd1234"
	once := Format(x)
	twice := Format(once)
	if once != twice {
		t.Fatalf("format not idempotent: %s != %s", once, twice)
	}
	if len(twice) != AddrLen {
		t.Fatalf("expected length %d, got %d", AddrLen, len(twice))
	}
}

func TestFormatTruncatesOverlong(t *testing.T) {
	// 41 hex chars after 0x; must be truncated to the trailing 40.
	in := "0x" + "1" + "000000000000000000000000000000000000dead"
	got := Format(in)
	want := "0x000000000000000000000000000000000000dead"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestStripConstantPadding(t *testing.T) {
	row := "000000000000000000000000dead00000000000000000000000000000beef"
	got := StripConstantPadding(row)
	want := Format("dead00000000000000000000000000000beef")
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestFormatSelectorKeepsSentinel(t *testing.T) {
	if FormatSelector(FunctionSelectorSentinel) != FunctionSelectorSentinel {
		t.Fatal("sentinel must pass through unchanged")
	}
}

func TestFormatSelectorAddsPrefix(t *testing.T) {
	got := FormatSelector("ABCDEF01")
	if got != "0xabcdef01" {
		t.Fatalf("got %s", got)
	}
}

func TestStripZeroPadSuffix(t *testing.T) {
	padded := "0xabcdef01" + "00000000000000000000000000000000000000000000000000000000"
	got := StripZeroPadSuffix(padded)
	if got != "0xabcdef01" {
		t.Fatalf("got %s", got)
	}
}

func TestCompositeKey(t *testing.T) {
	k := CompositeKey("caller", "s1", "addr", "fn", "callerfn")
	want := "caller_s1_addr_fn_callerfn"
	if k != want {
		t.Fatalf("got %s want %s", k, want)
	}
}
