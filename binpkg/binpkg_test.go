package binpkg

import "testing"

func TestNew_SingleEntrypoint(t *testing.T) {
	pkg, err := New([]Command{
		{Name: "main", Atom: []byte{0x00}, Entrypoint: true},
		{Name: "helper", Atom: []byte{0x01}},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if pkg.ID() == "" {
		t.Error("expected non-empty package id")
	}

	c, ok := pkg.Entrypoint()
	if !ok || c.Name != "main" {
		t.Errorf("Entrypoint() = %+v, %v; want main, true", c, ok)
	}
}

func TestNew_NoEntrypoint(t *testing.T) {
	pkg, err := New([]Command{{Name: "helper", Atom: []byte{0x01}}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := pkg.Entrypoint(); ok {
		t.Error("expected no entrypoint")
	}
}

func TestNew_MultipleEntrypointsRejected(t *testing.T) {
	_, err := New([]Command{
		{Name: "a", Entrypoint: true},
		{Name: "b", Entrypoint: true},
	})
	if err == nil {
		t.Fatal("expected error for multiple entrypoints")
	}
}

func TestNew_DuplicateNameRejected(t *testing.T) {
	_, err := New([]Command{{Name: "a"}, {Name: "a"}})
	if err == nil {
		t.Fatal("expected error for duplicate command name")
	}
}

func TestBinaryPackage_DistinctIDs(t *testing.T) {
	a, _ := New([]Command{{Name: "main"}})
	b, _ := New([]Command{{Name: "main"}})
	if a.ID() == b.ID() {
		t.Error("expected distinct package ids")
	}
}

func TestBinaryPackage_Commands(t *testing.T) {
	pkg, _ := New([]Command{{Name: "a"}, {Name: "b"}})
	got := pkg.Commands()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Commands() = %v, want [a b]", got)
	}
}
