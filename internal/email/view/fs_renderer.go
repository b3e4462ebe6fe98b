package view

import (
	"io"
	"io/fs"
	"sync"

	"github.com/willemschots/mailverify/internal/email"
)

// FSRenderer renders views found in a file system.
type FSRenderer struct {
	fs fs.FS
	// cache is nil when views should be parsed on every render.
	cache *sync.Map
}

// NewFSRenderer creates a renderer that parses views once and caches them.
func NewFSRenderer(fs fs.FS) *FSRenderer {
	return &FSRenderer{fs: fs, cache: &sync.Map{}}
}

// NewReloadingFSRenderer creates a renderer that parses views on every render,
// useful while editing templates on disk.
func NewReloadingFSRenderer(fs fs.FS) *FSRenderer {
	return &FSRenderer{fs: fs}
}

func (r *FSRenderer) Render(w io.Writer, name string, element email.TemplateElement, data any) error {
	v, err := r.view(name)
	if err != nil {
		return err
	}

	return v.Render(w, element, data)
}

func (r *FSRenderer) view(name string) (*View, error) {
	if r.cache == nil {
		return Parse(r.fs, name)
	}

	if v, ok := r.cache.Load(name); ok {
		return v.(*View), nil
	}

	v, err := Parse(r.fs, name)
	if err != nil {
		return nil, err
	}

	r.cache.Store(name, v)
	return v, nil
}
