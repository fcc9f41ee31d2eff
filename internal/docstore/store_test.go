package docstore

import (
	"context"
	"os"
	"testing"
)

func TestFSPut(t *testing.T) {
	fs := NewFS(t.TempDir())

	ref, err := fs.Put(context.Background(), "receipts/abc.txt", []byte("RECEIPT abc"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "RECEIPT abc" {
		t.Fatalf("content = %q", data)
	}
}

func TestFSPut_RejectsTraversal(t *testing.T) {
	fs := NewFS(t.TempDir())

	if _, err := fs.Put(context.Background(), "../outside.txt", []byte("x")); err == nil {
		t.Fatal("expected error for path traversal")
	}
}

func TestFSPut_HonorsContext(t *testing.T) {
	fs := NewFS(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fs.Put(ctx, "receipts/abc.txt", []byte("x")); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
