package filestore

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/lofcz/minfold/internal/errs"
)

// PublishDir uploads every schema-documentation file directly under dir to
// bucket, keyed as "<dir base>/<file name>". The bucket is created when
// missing. A single failed upload aborts publishing; partial uploads are
// harmless because every run rewrites the full set.
func PublishDir(ctx context.Context, store Store, bucket, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errs.Wrap(errs.ErrKindNotFound, "read "+dir, err)
	}
	if err := store.EnsureBucket(ctx, bucket); err != nil {
		return 0, err
	}

	prefix := filepath.Base(dir)
	count := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return count, errs.Wrap(errs.ErrKindNotFound, "read "+e.Name(), err)
		}
		key := path.Join(prefix, e.Name())
		if err := store.PutObject(ctx, bucket, key, data, "text/markdown"); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
