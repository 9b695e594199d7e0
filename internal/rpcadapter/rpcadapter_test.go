package rpcadapter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/holiman/uint256"
)

func padWord(tail string) string {
	return "0000000000000000000000000000000000000000000000000000000000000000"[:64-len(tail)] + tail
}

func TestExtractStorageRangeByteLowZero(t *testing.T) {
	word := padWord("dead")
	got := ExtractStorageRange(word, 0, 19)
	if len(got) != 42 {
		t.Fatalf("expected 42-char address, got %d (%s)", len(got), got)
	}
	if got != "0x000000000000000000000000000000000000dead" {
		t.Fatalf("got %s", got)
	}
}

func TestExtractStorageRangeMiddleSlice(t *testing.T) {
	// 32-byte word; bytes indexed from the right, byteLow=2 byteHigh=5 => 4-byte slice.
	word := padWord("112233445566")
	got := ExtractStorageRange(word, 2, 5)
	want := "0x" + word[64-6*2:64-2*2]
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

type fakeTransport struct {
	calls  int
	result string
}

func (f *fakeTransport) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	f.calls++
	return json.RawMessage(`"` + f.result + `"`), nil
}

func TestGetStorageWordMemoizesPerSlot(t *testing.T) {
	ft := &fakeTransport{result: "0x000000000000000000000000000000000000000000000000000000000000dead"}
	c := &Client{Platform: "ETH", transport: ft, timeout: time.Second, slotCache: make(map[string]string)}

	slot := uint256.NewInt(3)
	first, err := c.GetStorageWord(context.Background(), "0xaaaa", slot, "latest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.GetStorageWord(context.Background(), "0xaaaa", slot, "latest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("cache returned different values: %s vs %s", first, second)
	}
	if ft.calls != 1 {
		t.Fatalf("expected exactly one RPC call, got %d", ft.calls)
	}
}

func TestNormalizeBlockTag(t *testing.T) {
	if normalizeBlockTag("") != "latest" {
		t.Fatal("empty block tag should normalize to latest")
	}
	if normalizeBlockTag("0x0") != "latest" {
		t.Fatal("zero block tag should normalize to latest")
	}
	if got := normalizeBlockTag("0xa"); got != "0xa" {
		t.Fatalf("got %s", got)
	}
}
