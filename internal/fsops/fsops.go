package fsops

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/temirov/pktables/internal/ingest"
	"github.com/temirov/pktables/internal/table"
)

// Kind is the format of an input or output file, decided by its extension.
type Kind string

const (
	KindMarkdown Kind = "markdown"
	KindCSV      Kind = "csv"
	KindHTML     Kind = "html"
	KindJSON     Kind = "json"
	KindUnknown  Kind = ""

	unsupportedKindErrorFormat = "%s: unsupported file type %q"
	readErrorFormat            = "read %s: %w"
	writeErrorFormat           = "write %s: %w"
)

func KindOf(name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".txt":
		return KindMarkdown
	case ".csv":
		return KindCSV
	case ".html", ".htm", ".xhtml":
		return KindHTML
	case ".json":
		return KindJSON
	default:
		return KindUnknown
	}
}

// Ops reads inputs and writes results over an afero filesystem, the OS one in
// the CLI and an in-memory one in tests.
type Ops struct{ Fs afero.Fs }

func NewOS() Ops  { return Ops{Fs: afero.NewOsFs()} }
func NewMem() Ops { return Ops{Fs: afero.NewMemMapFs()} }

type FileInfo struct {
	AbsolutePath string
	BaseName     string
	Kind         Kind
	SizeBytes    int64
}

// Inventory lists the table inputs (markdown, CSV, HTML) below root in path
// order. Dot-directories are skipped.
func (o Ops) Inventory(root string) ([]FileInfo, error) {
	var out []FileInfo
	err := afero.Walk(o.Fs, filepath.Clean(root), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if p != filepath.Clean(root) && strings.HasPrefix(info.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		kind := KindOf(p)
		if kind == KindUnknown || kind == KindJSON {
			return nil
		}
		ext := filepath.Ext(p)
		out = append(out, FileInfo{
			AbsolutePath: p,
			BaseName:     strings.TrimSuffix(filepath.Base(p), ext),
			Kind:         kind,
			SizeBytes:    info.Size(),
		})
		return nil
	})
	slices.SortFunc(out, func(a, b FileInfo) int { return strings.Compare(a.AbsolutePath, b.AbsolutePath) })
	return out, err
}

// ReadTable reads a markdown or CSV table.
func (o Ops) ReadTable(path string) (table.Table, error) {
	data, err := afero.ReadFile(o.Fs, filepath.Clean(path))
	if err != nil {
		return table.Table{}, fmt.Errorf(readErrorFormat, path, err)
	}
	var parsed table.Table
	switch KindOf(path) {
	case KindMarkdown:
		parsed, err = table.Decode(string(data))
	case KindCSV:
		parsed, err = table.ReadCSV(bytes.NewReader(data))
	default:
		return table.Table{}, fmt.Errorf(unsupportedKindErrorFormat, path, filepath.Ext(path))
	}
	if err != nil {
		return table.Table{}, fmt.Errorf(readErrorFormat, path, err)
	}
	return parsed, nil
}

// ReadHTML returns every table of an HTML page with its caption and footnote.
func (o Ops) ReadHTML(path string) ([]ingest.Table, error) {
	file, err := o.Fs.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf(readErrorFormat, path, err)
	}
	defer func() { _ = file.Close() }()
	tables, err := ingest.Parse(file)
	if err != nil {
		return nil, fmt.Errorf(readErrorFormat, path, err)
	}
	return tables, nil
}

func (o Ops) ReadText(path string) (string, error) {
	data, err := afero.ReadFile(o.Fs, filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf(readErrorFormat, path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteTable writes CSV for .csv paths and markdown otherwise.
func (o Ops) WriteTable(path string, t table.Table) error {
	var data []byte
	switch KindOf(path) {
	case KindCSV:
		encoded, err := table.EncodeCSV(t)
		if err != nil {
			return fmt.Errorf(writeErrorFormat, path, err)
		}
		data = encoded
	default:
		data = []byte(table.Encode(t))
	}
	return o.writeAtomic(path, data)
}

// WriteJSON writes v as indented JSON.
func (o Ops) WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf(writeErrorFormat, path, err)
	}
	return o.writeAtomic(path, append(data, '\n'))
}

// writeAtomic writes next to the target and renames, so readers never see a
// partial file.
func (o Ops) writeAtomic(path string, data []byte) error {
	path = filepath.Clean(path)
	if err := o.EnsureDir(path); err != nil {
		return fmt.Errorf(writeErrorFormat, path, err)
	}
	temporary := path + ".tmp"
	if err := afero.WriteFile(o.Fs, temporary, data, 0o644); err != nil {
		return fmt.Errorf(writeErrorFormat, path, err)
	}
	if err := o.Fs.Rename(temporary, path); err != nil {
		_ = o.Fs.Remove(temporary)
		return fmt.Errorf(writeErrorFormat, path, err)
	}
	return nil
}

func (o Ops) EnsureDir(path string) error { return o.Fs.MkdirAll(filepath.Dir(path), 0o755) }
func (o Ops) FileExists(p string) bool {
	_, err := o.Fs.Stat(p)
	return err == nil
}
func (o Ops) IsDir(p string) bool {
	isDir, err := afero.IsDir(o.Fs, p)
	return err == nil && isDir
}
