package prefs

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// File is a Source backed by a preferences file. Reload re-reads it; Watch
// reloads on every write until ctx ends. A file that fails to parse leaves the
// last good preferences in place.
type File struct {
	*Static
	path string
	log  zerolog.Logger
}

// OpenFile loads path. A missing file yields defaults and no error so a fresh
// install can start with nothing selected.
func OpenFile(path string, log zerolog.Logger) (*File, error) {
	f := &File{Static: NewStatic(Defaults()), path: path, log: log}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Path() string { return f.path }

// Reload re-reads the file.
func (f *File) Reload() error {
	p, err := LoadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			f.log.Debug().Str("event", "prefs_missing").Str("path", f.path).Msg("using defaults")
			return nil
		}
		return err
	}
	f.Set(p)
	f.log.Debug().Str("event", "prefs_loaded").Str("path", f.path).Str("selected", p.SelectedModel).Msg("")
	return nil
}

// Watch blocks, reloading on changes, until ctx is done. onChange, when set,
// runs after each successful reload. The directory is watched so editors that
// replace the file by rename are followed.
func (f *File) Watch(ctx context.Context, onChange func(Preferences)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return err
	}
	target := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := f.Reload(); err != nil {
				f.log.Warn().Str("event", "prefs_reload_failed").Err(err).Msg("keeping previous preferences")
				continue
			}
			if onChange != nil {
				onChange(f.Get())
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.log.Warn().Str("event", "prefs_watch_error").Err(err).Msg("")
		}
	}
}
