// Package refstore locates and stores reference screenshots. References live
// either in a local directory or in an S3 bucket; both are addressed by file
// name, e.g. "login_linux_chrome_120.png".
package refstore

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vaadin/testbench-sub002/internal/errs"
	"github.com/vaadin/testbench-sub002/internal/imagefile"
	"github.com/vaadin/testbench-sub002/internal/s3client"
)

// Store reads and writes reference images by file name.
type Store interface {
	// Read returns the named image, or an errs.NotFound error.
	Read(ctx context.Context, name string) (image.Image, error)
	Write(ctx context.Context, name string, img image.Image) error
	Exists(ctx context.Context, name string) (bool, error)
}

// Lister is a Store that can enumerate its references.
type Lister interface {
	Store
	List(ctx context.Context, prefix string) ([]string, error)
}

// DirStore keeps references as PNG files in a directory.
type DirStore struct {
	dir string
}

// NewDirStore returns a store rooted at dir. The directory is created on the
// first write.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

// Dir returns the store's root directory.
func (s *DirStore) Dir() string { return s.dir }

// Path returns the file path of the named reference.
func (s *DirStore) Path(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(name)), nil
}

func (s *DirStore) Read(_ context.Context, name string) (image.Image, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	return imagefile.Load(path)
}

func (s *DirStore) Write(_ context.Context, name string, img image.Image) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	return imagefile.Save(path, img)
}

func (s *DirStore) Exists(_ context.Context, name string) (bool, error) {
	path, err := s.Path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat reference %s: %w", name, err)
}

// BucketStore keeps references as PNG objects in S3.
type BucketStore struct {
	client *s3client.Client
}

// NewBucketStore returns a store backed by client. Names are used as object
// keys below the client's prefix.
func NewBucketStore(client *s3client.Client) *BucketStore {
	return &BucketStore{client: client}
}

func (s *BucketStore) Read(ctx context.Context, name string) (image.Image, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := s.client.GetObject(ctx, name)
	if errors.Is(err, s3client.ErrObjectNotFound) {
		return nil, errs.Wrap(errs.NotFound, fmt.Sprintf("reference %s does not exist", name), err)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "could not read reference from bucket", err)
	}
	return imagefile.DecodeBytes(data)
}

func (s *BucketStore) Write(ctx context.Context, name string, img image.Image) error {
	if err := checkName(name); err != nil {
		return err
	}
	data, err := imagefile.EncodeBytes(img)
	if err != nil {
		return err
	}
	if err := s.client.PutObject(ctx, name, data, "image/png"); err != nil {
		return errs.Wrap(errs.Unavailable, "could not write reference to bucket", err)
	}
	return nil
}

func (s *BucketStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	ok, err := s.client.Exists(ctx, name)
	if err != nil {
		return false, errs.Wrap(errs.Unavailable, "could not look up reference in bucket", err)
	}
	return ok, nil
}

// List returns the names of all PNG references starting with prefix, in
// lexical order. A missing directory holds no references.
func (s *DirStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == s.dir {
				return filepath.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".png") {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		if name := filepath.ToSlash(rel); strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list references in %s: %w", s.dir, err)
	}
	return names, nil
}

// List returns the names of all references starting with prefix.
func (s *BucketStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.client.ListKeys(ctx, prefix)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "could not list references in bucket", err)
	}
	return keys, nil
}

// checkName rejects names that would escape the store's root.
func checkName(name string) error {
	if name == "" || strings.Contains(name, `\`) || !filepath.IsLocal(filepath.FromSlash(name)) {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("invalid reference name %q", name))
	}
	return nil
}
