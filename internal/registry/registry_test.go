package registry

import "testing"

func TestRegistry_ReloadReplacesSnapshot(t *testing.T) {
	r := New()
	if err := r.Reload([]*Backend{{Name: "a"}, {Name: "b"}}); err != nil {
		t.Fatal(err)
	}
	if names := r.Names(); len(names) != 2 {
		t.Fatalf("expected 2 backends, got %v", names)
	}
	if err := r.Reload([]*Backend{{Name: "c"}}); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Get("a"); ok {
		t.Fatal("expected a dropped after reload")
	}
	if _, ok := r.Get("c"); !ok {
		t.Fatal("expected c present after reload")
	}
}

func TestRegistry_ReloadRejectsDuplicateNames(t *testing.T) {
	r := New()
	err := r.Reload([]*Backend{{Name: "a"}, {Name: "a"}})
	if err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestRegistry_RegisterAndUnregisterAreIncremental(t *testing.T) {
	r := New()
	_ = r.Reload([]*Backend{{Name: "a"}})
	if err := r.Register(&Backend{Name: "b"}); err != nil {
		t.Fatal(err)
	}
	if len(r.Names()) != 2 {
		t.Fatalf("expected 2 backends after register, got %v", r.Names())
	}
	if !r.Unregister("a") {
		t.Fatal("expected unregister to report removal")
	}
	if r.Unregister("a") {
		t.Fatal("expected second unregister to report no-op")
	}
	if len(r.Names()) != 1 {
		t.Fatalf("expected 1 backend after unregister, got %v", r.Names())
	}
}

func TestRegistry_ResolveFallbackChainDedupsAndSkipsUnknown(t *testing.T) {
	r := New()
	_ = r.Reload([]*Backend{
		{Name: "primary", Fallbacks: []string{"primary", "missing", "secondary", "secondary"}},
		{Name: "secondary"},
	})
	chain, skipped := r.ResolveFallbackChain("primary")
	if len(chain) != 2 || chain[0].Name != "primary" || chain[1].Name != "secondary" {
		t.Fatalf("unexpected chain: %+v", chain)
	}
	if len(skipped) != 1 || skipped[0] != "missing" {
		t.Fatalf("expected missing skipped, got %v", skipped)
	}
}

func TestRegistry_InFlightBackendSurvivesReload(t *testing.T) {
	r := New()
	_ = r.Reload([]*Backend{{Name: "a", TargetModel: "v1"}})
	b, ok := r.Get("a")
	if !ok {
		t.Fatal("expected backend")
	}
	_ = r.Reload([]*Backend{{Name: "a", TargetModel: "v2"}})
	if b.TargetModel != "v1" {
		t.Fatalf("held reference must not mutate: %v", b.TargetModel)
	}
	b2, _ := r.Get("a")
	if b2.TargetModel != "v2" {
		t.Fatalf("fresh lookup must see new value: %v", b2.TargetModel)
	}
}
