package archive

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestArchive_PutGet(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	doc := &Document{ID: "d1", Name: "One.pdf", Text: "full extracted text", PageCount: 3}
	if err := a.Put(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if doc.UploadedAt.IsZero() {
		t.Error("Put did not set UploadedAt")
	}

	got, err := a.Get(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "One.pdf" || got.Text != "full extracted text" || got.PageCount != 3 {
		t.Errorf("got %+v", got)
	}
}

func TestArchive_GetMissing(t *testing.T) {
	a := openTestArchive(t)
	_, err := a.Get(context.Background(), "nope")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v", err)
	}
}

func TestArchive_PutReplaces(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	if err := a.Put(ctx, &Document{ID: "d1", Name: "Old", Text: "old text", PageCount: 1}); err != nil {
		t.Fatal(err)
	}
	if err := a.Put(ctx, &Document{ID: "d1", Name: "New", Text: "new text", PageCount: 2}); err != nil {
		t.Fatal(err)
	}
	got, err := a.Get(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "New" || got.Text != "new text" {
		t.Errorf("got %+v", got)
	}
	n, err := a.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d", n)
	}
}

func TestArchive_DeleteAndUnknownDelete(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	if err := a.Put(ctx, &Document{ID: "d1", Name: "One", Text: "text"}); err != nil {
		t.Fatal(err)
	}
	if err := a.Delete(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Get(ctx, "d1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err after delete = %v", err)
	}
	if err := a.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("unknown delete: %v", err)
	}
}

func TestArchive_ListOldestFirst(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		doc := &Document{ID: id, Name: id, Text: "text " + id, UploadedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := a.Put(ctx, doc); err != nil {
			t.Fatal(err)
		}
	}
	docs, err := a.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 {
		t.Fatalf("len = %d", len(docs))
	}
	for i, want := range []string{"c", "a", "b"} {
		if docs[i].ID != want {
			t.Errorf("docs[%d] = %s, want %s", i, docs[i].ID, want)
		}
	}
	if docs[0].Text != "text c" {
		t.Errorf("List must include text, got %q", docs[0].Text)
	}
}

func TestArchive_Reopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.db")
	ctx := context.Background()

	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Put(ctx, &Document{ID: "d1", Name: "One", Text: "persisted"}); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	b, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	got, err := b.Get(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "persisted" {
		t.Errorf("got %q", got.Text)
	}
}
