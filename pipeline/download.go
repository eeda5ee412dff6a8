package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// maxDuplicates bounds the "name (n).csv" probing for a free file name.
const maxDuplicates = 1000

// File is an export ready to be downloaded.
type File struct {
	Name string
	MIME string
	Body []byte
}

// Downloader delivers a file to the user and reports where it ended up.
type Downloader interface {
	Download(ctx context.Context, f File) (location string, err error)
}

// FileDownloader saves exports into a downloads directory. The body is
// first written to a temporary object inside Dir; the download places that
// object under the requested name, adding " (n)" before the extension when
// the name is taken. The temporary object is always removed afterwards.
type FileDownloader struct {
	Dir string
}

// NewFileDownloader returns a downloader writing into dir.
func NewFileDownloader(dir string) *FileDownloader {
	return &FileDownloader{Dir: dir}
}

func (d *FileDownloader) Download(ctx context.Context, f File) (string, error) {
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create downloads directory %q: %w", dir, err)
	}

	obj, err := createObject(dir, f)
	if err != nil {
		return "", err
	}
	defer obj.release()

	return obj.trigger(ctx, dir, f.Name)
}

// object is a temporary on-disk copy of an export, addressed by a file URL.
type object struct {
	path string
	url  string
}

func createObject(dir string, f File) (*object, error) {
	tmp, err := os.CreateTemp(dir, ".download-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create download object: %w", err)
	}
	if _, err := tmp.Write(f.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write download object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("close download object: %w", err)
	}

	abs, err := filepath.Abs(tmp.Name())
	if err != nil {
		abs = tmp.Name()
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return &object{path: tmp.Name(), url: u.String()}, nil
}

func (o *object) trigger(ctx context.Context, dir, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("download %s: %w", o.url, err)
	}
	name = filepath.Base(name)
	for n := 0; n < maxDuplicates; n++ {
		target := filepath.Join(dir, numberedName(name, n))
		err := place(o.path, target)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("download %s: %w", o.url, err)
		}
	}
	return "", fmt.Errorf("download %s: no free file name for %q", o.url, name)
}

func (o *object) release() {
	os.Remove(o.path)
}

// numberedName returns name for n == 0 and "base (n).ext" otherwise.
func numberedName(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + " (" + strconv.Itoa(n) + ")" + ext
}

// place links src to dst, copying when the filesystem has no hard links.
// An existing dst is reported as fs.ErrExist.
func place(src, dst string) error {
	err := os.Link(src, dst)
	if err == nil || errors.Is(err, fs.ErrExist) {
		return err
	}
	return copyExclusive(src, dst)
}

func copyExclusive(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// ResponseDownloader sends the export as an HTTP attachment.
type ResponseDownloader struct {
	W http.ResponseWriter
}

func (d ResponseDownloader) Download(ctx context.Context, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("download %s: %w", f.Name, err)
	}

	h := d.W.Header()
	h.Set("Content-Type", f.MIME)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	h.Set("Content-Length", strconv.Itoa(len(f.Body)))
	d.W.WriteHeader(http.StatusOK)
	if _, err := d.W.Write(f.Body); err != nil {
		return "", fmt.Errorf("write attachment %s: %w", f.Name, err)
	}
	return f.Name, nil
}
