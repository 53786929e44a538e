// Package filesource resolves job inputs into raw PDF bytes.
package filesource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/caselight/caselight/internal/types"
)

// File is one resolved input file.
type File struct {
	Name string
	Data []byte
	// Path is the original location, for duplicate-sighting records. Inline
	// uploads carry their file name here.
	Path string
}

// Source resolves a job request's inputs. Implementations must be safe for
// concurrent use.
type Source interface {
	// Resolve returns the input files for a request, in stable order.
	Resolve(ctx context.Context, req *types.JobRequest) ([]File, error)
}

// Local resolves inline base64 uploads and remote folder refs that point at
// local directories.
type Local struct {
	// Root, when set, confines folder refs to a base directory.
	Root string
}

// Resolve decodes inline files, or lists PDFs under the folder ref.
func (l *Local) Resolve(ctx context.Context, req *types.JobRequest) ([]File, error) {
	if len(req.Files) > 0 {
		out := make([]File, 0, len(req.Files))
		for _, f := range req.Files {
			if f.Name == "" {
				return nil, types.Errorf(types.ErrKindInputInvalid, "file with empty name")
			}
			if len(f.Bytes) == 0 {
				return nil, types.Errorf(types.ErrKindInputInvalid, "file %s: empty content", f.Name)
			}
			out = append(out, File{Name: f.Name, Data: f.Bytes, Path: f.Name})
		}
		return out, nil
	}

	if req.RemoteFolderRef == "" {
		return nil, types.Errorf(types.ErrKindInputInvalid, "no files and no folder ref")
	}
	return l.resolveFolder(ctx, req.RemoteFolderRef)
}

func (l *Local) resolveFolder(ctx context.Context, ref string) ([]File, error) {
	dir := ref
	if l.Root != "" {
		dir = filepath.Join(l.Root, filepath.Clean("/"+ref))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.WrapKind(types.ErrKindNotFound,
				fmt.Errorf("folder %s: %w", ref, types.ErrNotFound))
		}
		return nil, fmt.Errorf("read folder %s: %w", ref, err)
	}

	var out []File
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, types.WrapKind(types.ErrKindCancelled, err)
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		out = append(out, File{Name: entry.Name(), Data: data, Path: path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
