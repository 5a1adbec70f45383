package pager

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func openTestPager(t *testing.T) *Pager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pg")
	p, err := OpenPager(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("OpenPager failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestWriteAndGetPage(t *testing.T) {
	p := openTestPager(t)

	pg, err := p.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if pg != 0 {
		t.Fatalf("expected first page to be 0, got %d", pg)
	}

	data, err := p.GetPage(pg)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if !bytes.Equal(bytes.TrimRight(data, "\x00"), []byte("hello")) {
		t.Fatalf("unexpected page contents: %q", data)
	}
}

func TestCountAndSize(t *testing.T) {
	p := openTestPager(t)

	for i := 0; i < 5; i++ {
		if _, err := p.Write([]byte("record")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	if p.Count() != 5 {
		t.Fatalf("expected 5 pages, got %d", p.Count())
	}
	if p.Size() != 5*(PAGE_SIZE+HEADER_SIZE) {
		t.Fatalf("unexpected size %d", p.Size())
	}
}

func TestTruncate(t *testing.T) {
	p := openTestPager(t)

	for i := 0; i < 10; i++ {
		if _, err := p.Write([]byte("record")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	if err := p.Truncate(3); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}

	if p.Count() != 3 {
		t.Fatalf("expected 3 pages after truncate, got %d", p.Count())
	}
}

func TestCursorForwardBackward(t *testing.T) {
	p := openTestPager(t)

	for i := 0; i < 4; i++ {
		if _, err := p.Write([]byte{byte(i)}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	c := NewCursor(p)
	var forward []byte
	for c.Next() {
		data, err := c.Data()
		if err != nil {
			t.Fatalf("Data failed: %v", err)
		}
		forward = append(forward, data[0])
	}
	if !bytes.Equal(forward, []byte{0, 1, 2, 3}) {
		t.Fatalf("unexpected forward traversal: %v", forward)
	}

	back := NewCursorAtEnd(p)
	var backward []byte
	for back.Prev() {
		data, err := back.Data()
		if err != nil {
			t.Fatalf("Data failed: %v", err)
		}
		backward = append(backward, data[0])
	}
	if !bytes.Equal(backward, []byte{3, 2, 1, 0}) {
		t.Fatalf("unexpected backward traversal: %v", backward)
	}
}
