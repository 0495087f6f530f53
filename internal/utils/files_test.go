package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSafeWriteFile_CreatesParentAndReplaces(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out", "nested", "trips.csv")
	if err := SafeWriteFile(p, []byte("a")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := SafeWriteFile(p, []byte("b")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "b" {
		t.Fatalf("content = %q, want %q", b, "b")
	}
	if _, err := os.Stat(p + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestPrettyJSON(t *testing.T) {
	b, err := PrettyJSON(map[string]int{"trips": 3})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "\n  \"trips\": 3") {
		t.Fatalf("json = %s", b)
	}
	if _, err := PrettyJSON(make(chan int)); err == nil {
		t.Fatal("expected marshal error for channel")
	}
}
