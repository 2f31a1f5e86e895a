package capability

import "testing"

func TestStoresPublishCopies(t *testing.T) {
	s := NewStores()

	var first, second map[string]any
	_, _ = s.Subscribe(StoreVault, func(v any) {
		first = v.(map[string]any)
		first["name"] = "changed"
	})
	_, _ = s.Subscribe(StoreVault, func(v any) { second = v.(map[string]any) })

	value := map[string]any{"name": "vault"}
	if err := s.Publish(StoreVault, value); err != nil {
		t.Fatal(err)
	}
	if value["name"] != "vault" {
		t.Error("subscriber mutated the published value")
	}
	if second["name"] != "vault" {
		t.Error("subscribers should receive independent copies")
	}
	_ = first
}

func TestStoresPanickingSubscriber(t *testing.T) {
	s := NewStores()
	delivered := false
	_, _ = s.Subscribe(StoreUI, func(any) { panic("bad subscriber") })
	_, _ = s.Subscribe(StoreUI, func(any) { delivered = true })

	if err := s.Publish(StoreUI, 1); err != nil {
		t.Fatal(err)
	}
	if !delivered {
		t.Error("a panicking subscriber must not block others")
	}
}

func TestStoresUnsubscribeIdempotent(t *testing.T) {
	s := NewStores()
	off, _ := s.Subscribe(StoreSearch, func(any) {})
	off()
	off()
	if s.Subscribers(StoreSearch) != 0 {
		t.Error("subscriber not removed")
	}
}
