package redisclient

import "testing"

func TestNewWithoutAddrIsNil(t *testing.T) {
	if c := New(Config{}); c != nil {
		t.Fatalf("expected nil client without an address")
	}
}

func TestNewBuildsStore(t *testing.T) {
	c := New(Config{Addr: "127.0.0.1:0"})
	if c == nil {
		t.Fatalf("expected client")
	}
	defer c.Close()

	if c.Store() == nil || c.Raw() == nil {
		t.Fatalf("store and raw client must be set")
	}
}
