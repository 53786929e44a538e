package filesource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/caselight/caselight/internal/types"
)

func TestResolveInline(t *testing.T) {
	ctx := context.Background()
	l := &Local{}

	t.Run("inline files pass through in order", func(t *testing.T) {
		req := &types.JobRequest{
			Files: []types.InputFile{
				{Name: "b.pdf", Bytes: []byte("bbb")},
				{Name: "a.pdf", Bytes: []byte("aaa")},
			},
		}
		files, err := l.Resolve(ctx, req)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if len(files) != 2 {
			t.Fatalf("got %d files, want 2", len(files))
		}
		if files[0].Name != "b.pdf" || files[1].Name != "a.pdf" {
			t.Errorf("inline order changed: %s, %s", files[0].Name, files[1].Name)
		}
		if string(files[0].Data) != "bbb" {
			t.Errorf("data = %q", files[0].Data)
		}
		if files[0].Path != "b.pdf" {
			t.Errorf("inline path = %q, want the file name", files[0].Path)
		}
	})

	t.Run("empty name rejected", func(t *testing.T) {
		req := &types.JobRequest{Files: []types.InputFile{{Name: "", Bytes: []byte("x")}}}
		_, err := l.Resolve(ctx, req)
		if types.KindOf(err) != types.ErrKindInputInvalid {
			t.Errorf("kind = %v, want input_invalid", types.KindOf(err))
		}
	})

	t.Run("empty content rejected", func(t *testing.T) {
		req := &types.JobRequest{Files: []types.InputFile{{Name: "a.pdf"}}}
		_, err := l.Resolve(ctx, req)
		if types.KindOf(err) != types.ErrKindInputInvalid {
			t.Errorf("kind = %v, want input_invalid", types.KindOf(err))
		}
	})

	t.Run("no input at all rejected", func(t *testing.T) {
		_, err := l.Resolve(ctx, &types.JobRequest{})
		if types.KindOf(err) != types.ErrKindInputInvalid {
			t.Errorf("kind = %v, want input_invalid", types.KindOf(err))
		}
	})
}

func TestResolveFolder(t *testing.T) {
	ctx := context.Background()

	writeFile := func(t *testing.T, dir, name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("lists pdfs sorted, case-insensitive extension", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "zeta.pdf", "z")
		writeFile(t, dir, "Alpha.PDF", "a")
		writeFile(t, dir, "notes.txt", "skip me")
		if err := os.Mkdir(filepath.Join(dir, "nested.pdf"), 0o755); err != nil {
			t.Fatal(err)
		}

		l := &Local{}
		files, err := l.Resolve(ctx, &types.JobRequest{RemoteFolderRef: dir})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if len(files) != 2 {
			t.Fatalf("got %d files, want 2", len(files))
		}
		if files[0].Name != "Alpha.PDF" || files[1].Name != "zeta.pdf" {
			t.Errorf("order = %s, %s", files[0].Name, files[1].Name)
		}
		if files[0].Path != filepath.Join(dir, "Alpha.PDF") {
			t.Errorf("path = %q", files[0].Path)
		}
	})

	t.Run("missing folder is not found", func(t *testing.T) {
		l := &Local{}
		_, err := l.Resolve(ctx, &types.JobRequest{RemoteFolderRef: filepath.Join(t.TempDir(), "missing")})
		if types.KindOf(err) != types.ErrKindNotFound {
			t.Errorf("kind = %v, want not_found", types.KindOf(err))
		}
	})

	t.Run("root confines folder refs", func(t *testing.T) {
		root := t.TempDir()
		inside := filepath.Join(root, "production")
		if err := os.Mkdir(inside, 0o755); err != nil {
			t.Fatal(err)
		}
		writeFile(t, inside, "doc.pdf", "content")

		outside := t.TempDir()
		writeFile(t, outside, "secret.pdf", "secret")

		l := &Local{Root: root}
		files, err := l.Resolve(ctx, &types.JobRequest{RemoteFolderRef: "production"})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if len(files) != 1 || files[0].Name != "doc.pdf" {
			t.Errorf("files = %+v", files)
		}

		// Traversal out of the root resolves inside it and finds nothing.
		escape := "../../" + filepath.Base(outside)
		if _, err := l.Resolve(ctx, &types.JobRequest{RemoteFolderRef: escape}); types.KindOf(err) != types.ErrKindNotFound {
			t.Errorf("kind = %v, want not_found for traversal attempt", types.KindOf(err))
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "doc.pdf", "content")
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		l := &Local{}
		_, err := l.Resolve(cctx, &types.JobRequest{RemoteFolderRef: dir})
		if types.KindOf(err) != types.ErrKindCancelled {
			t.Errorf("kind = %v, want cancelled", types.KindOf(err))
		}
	})
}
