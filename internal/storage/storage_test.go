package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// newTestStorage creates a temporary storage for testing.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestSetGet(t *testing.T) {
	s := newTestStorage(t)

	key := []byte("vb:test")
	value := []byte("record bytes")

	if err := s.Set(key, value); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(got, value) {
		t.Errorf("got %q, want %q", got, value)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStorage(t)

	got, err := s.Get([]byte("missing"))
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for missing key, got %q", got)
	}
}

func TestHas(t *testing.T) {
	s := newTestStorage(t)

	if err := s.Set([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}

	exists, err := s.Has([]byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("expected key to exist")
	}

	exists, err = s.Has([]byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("expected key to be absent")
	}
}

func TestCreateOnce(t *testing.T) {
	s := newTestStorage(t)

	key := []byte("pb:1:7")

	if err := s.CreateOnce(key, []byte("first")); err != nil {
		t.Fatal(err)
	}

	err := s.CreateOnce(key, []byte("second"))
	if !errors.Is(err, ErrKeyExists) {
		t.Fatalf("expected ErrKeyExists, got %v", err)
	}

	// First value must survive
	got, err := s.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "first" {
		t.Errorf("got %q, want %q", got, "first")
	}
}

func TestCreateOnceConcurrent(t *testing.T) {
	s := newTestStorage(t)

	key := []byte("pb:race")

	const writers = 16
	var wg sync.WaitGroup
	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.CreateOnce(key, []byte{byte(i)})
		}(i)
	}

	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrKeyExists):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if winners != 1 {
		t.Errorf("expected exactly 1 winner, got %d", winners)
	}
}

func TestSetBatch(t *testing.T) {
	s := newTestStorage(t)

	pairs := []KeyValue{
		{Key: []byte("k1"), Value: []byte("v1")},
		{Key: []byte("k2"), Value: []byte("v2")},
		{Key: []byte("k3"), Value: []byte("v3")},
	}

	if err := s.SetBatch(pairs); err != nil {
		t.Fatal(err)
	}

	for _, kv := range pairs {
		got, err := s.Get(kv.Key)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, kv.Value) {
			t.Errorf("key %q: got %q, want %q", kv.Key, got, kv.Value)
		}
	}
}

func TestIteratePrefix(t *testing.T) {
	s := newTestStorage(t)

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("vb:%d", i)
		if err := s.Set([]byte(key), []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Set([]byte("pb:0"), []byte{0xff}); err != nil {
		t.Fatal(err)
	}

	count := 0
	err := s.IteratePrefix([]byte("vb:"), func(key, value []byte) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if count != 5 {
		t.Errorf("expected 5 entries with prefix, got %d", count)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	tests := []struct {
		prefix []byte
		want   []byte
	}{
		{[]byte("vb:"), []byte("vb;")},
		{[]byte{0x01, 0xff}, []byte{0x02, 0x00}},
		{[]byte{0xff, 0xff}, nil},
	}

	for _, tt := range tests {
		got := prefixUpperBound(tt.prefix)

		if !bytes.Equal(got, tt.want) {
			t.Errorf("prefix %x: got %x, want %x", tt.prefix, got, tt.want)
		}
	}
}
