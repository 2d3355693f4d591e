package httpcore

import (
	"reflect"
	"testing"
)

func TestHeaderStoreAddPreservesOrderAndCase(t *testing.T) {
	h := NewHeaderStore()
	h.Add("Host", "example.com")
	h.Add("X-Forwarded-For", "10.0.0.1")
	h.Add("x-forwarded-for", "10.0.0.2")

	if got, want := h.Len(), 2; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if got, want := h.Keys(), []string{"host", "x-forwarded-for"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	if got, want := h.PeekAll("X-FORWARDED-FOR"), []string{"10.0.0.1", "10.0.0.2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("PeekAll() = %v, want %v", got, want)
	}
	if got, want := h.OrigName("x-forwarded-for"), "X-Forwarded-For"; got != want {
		t.Fatalf("OrigName() = %q, want %q", got, want)
	}
}

func TestHeaderStorePeekMissing(t *testing.T) {
	h := NewHeaderStore()
	if got := h.Peek("Nope"); got != "" {
		t.Fatalf("Peek() on missing header = %q, want empty", got)
	}
	if h.Contains("Nope") {
		t.Fatal("Contains() on missing header = true, want false")
	}
}

func TestHeaderStoreSetReplaces(t *testing.T) {
	h := NewHeaderStore()
	h.Add("Accept", "text/html")
	h.Add("Accept", "application/json")
	h.Set("Accept", "*/*")

	if got, want := h.PeekAll("accept"), []string{"*/*"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("PeekAll() after Set = %v, want %v", got, want)
	}
}

func TestHeaderStorePutEmptyDeletes(t *testing.T) {
	h := NewHeaderStore()
	h.Add("Accept", "text/html")
	h.Put("Accept", nil)

	if h.Contains("Accept") {
		t.Fatal("Contains() after Put(nil) = true, want false")
	}
	if got, want := h.Len(), 0; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
}

func TestHeaderStoreDelReindexes(t *testing.T) {
	h := NewHeaderStore()
	h.Add("A", "1")
	h.Add("B", "2")
	h.Add("C", "3")
	h.Del("b")

	if got, want := h.Keys(), []string{"a", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys() after Del = %v, want %v", got, want)
	}
	if got, want := h.Peek("c"), "3"; got != want {
		t.Fatalf("Peek(c) after Del = %q, want %q", got, want)
	}
}

func TestHeaderStoreReset(t *testing.T) {
	h := NewHeaderStore()
	h.Add("Host", "example.com")
	h.Reset()

	if got, want := h.Len(), 0; got != want {
		t.Fatalf("Len() after Reset = %d, want %d", got, want)
	}
	h.Add("Host", "other.com")
	if got, want := h.Peek("host"), "other.com"; got != want {
		t.Fatalf("Peek() after reuse = %q, want %q", got, want)
	}
}
