package server

import "testing"

func TestLibraryPutReplaces(t *testing.T) {
	lib := NewLibrary()
	if lib.Len() != 0 {
		t.Fatalf("Expected empty library, got %d files", lib.Len())
	}

	lib.Put("a.txt", "one")
	lib.Put("a.txt", "two")
	lib.Put("b.txt", "three")

	if lib.Len() != 2 {
		t.Fatalf("Expected 2 files, got %d", lib.Len())
	}
	if content, ok := lib.Get("a.txt"); !ok || content != "two" {
		t.Errorf("Expected replaced content %q, got %q (found=%v)", "two", content, ok)
	}
	if _, ok := lib.Get("missing.txt"); ok {
		t.Error("Expected missing file to be absent")
	}
}
