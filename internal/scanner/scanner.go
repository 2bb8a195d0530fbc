package scanner

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// LocalFile is a regular file found under a scanned directory.
type LocalFile struct {
	Path string // Path within the filesystem
	Rel  string // Slash-separated path relative to the scan root
	Size int64
}

// RemoteObject is an object found under a scanned prefix.
type RemoteObject struct {
	Info store.ObjectInfo
	Rel  string // Key with the prefix removed
}

// Scanner walks local directories and remote prefixes.
type Scanner struct {
	store   store.ObjectStore
	fs      billy.Filesystem
	matcher *Matcher
}

// New creates a scanner. A nil matcher accepts everything.
func New(objects store.ObjectStore, fs billy.Filesystem, matcher *Matcher) *Scanner {
	return &Scanner{store: objects, fs: fs, matcher: matcher}
}

// ScanLocal returns every regular file under root that passes the
// matcher, sorted by relative path.
func (s *Scanner) ScanLocal(ctx context.Context, root string) ([]LocalFile, error) {
	var files []LocalFile

	err := util.Walk(s.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel := strings.TrimPrefix(path.Clean(strings.TrimPrefix(p, root)), "/")
		if !s.matcher.Match(rel) {
			return nil
		}

		files = append(files, LocalFile{Path: p, Rel: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

// ScanRemote lists the objects under prefix that pass the matcher. Keys
// ending in a slash are directory markers and are skipped.
func (s *Scanner) ScanRemote(ctx context.Context, bucket, prefix string) ([]RemoteObject, error) {
	infos, err := s.store.ListObjects(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects in bucket %s: %w", bucket, err)
	}

	objects := make([]RemoteObject, 0, len(infos))
	for _, info := range infos {
		if !strings.HasPrefix(info.Key, prefix) || strings.HasSuffix(info.Key, "/") {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(info.Key, prefix), "/")
		if rel == "" || !s.matcher.Match(rel) {
			continue
		}
		objects = append(objects, RemoteObject{Info: info, Rel: rel})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Rel < objects[j].Rel })
	return objects, nil
}
