package config

import "testing"

func TestNewAppliesDefaults(t *testing.T) {
	cfg, err := New("", "0x000000000000000000000000000000000000da7a", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Platform != DefaultPlatform {
		t.Fatalf("expected default platform, got %s", cfg.Platform)
	}
	if cfg.BlockNumber != DefaultBlockNumber {
		t.Fatalf("expected default block number, got %d", cfg.BlockNumber)
	}
	if cfg.StorageAddress != cfg.LogicAddress {
		t.Fatalf("expected storage address to fall back to logic address")
	}
}

func TestNewRejectsUnknownPlatform(t *testing.T) {
	_, err := New("SOL", "0x000000000000000000000000000000000000da7a", "", 0)
	if err == nil {
		t.Fatal("expected error for unknown platform")
	}
}

func TestNewRejectsMalformedAddress(t *testing.T) {
	_, err := New("ETH", "0xdead", "", 0)
	if err == nil {
		t.Fatal("expected error for malformed address")
	}
}

func TestForCreatebinPinsSentinel(t *testing.T) {
	cfg, err := New("ETH", "0x000000000000000000000000000000000000da7a", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	src := ForCreatebin(cfg)
	if src.FuncSign != CreatebinFuncSelector {
		t.Fatalf("expected sentinel selector, got %s", src.FuncSign)
	}
}
