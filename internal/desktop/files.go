// Package desktop implements the local machine actions exposed to the model as tools.
package desktop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	searchMaxDepth   = 4
	searchMaxResults = 5
	readMaxBytes     = 256 << 10
	listMaxItems     = 30
)

var (
	ErrNotDirectory = errors.New("not a directory")
	ErrUnknownOp    = errors.New("unknown file operation")
)

var searchIgnoredDirs = map[string]struct{}{
	"node_modules":  {},
	".git":          {},
	"AppData":       {},
	"Program Files": {},
	"Windows":       {},
}

// Files resolves and manipulates paths on behalf of the model.
type Files struct {
	home      string
	workspace string
	opener    Opener
}

func NewFiles(workspace string, opener Opener) *Files {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	if strings.TrimSpace(workspace) == "" {
		workspace = filepath.Join(home, "Desktop")
	}
	if opener == nil {
		opener = SystemOpener{}
	}
	return &Files{home: home, workspace: workspace, opener: opener}
}

// Search finds up to five files whose name contains name, case-insensitively,
// at most four levels below pathHint (home when empty).
func (f *Files) Search(ctx context.Context, name, pathHint string) (string, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return "", fmt.Errorf("file name is required")
	}
	root := f.home
	if strings.TrimSpace(pathHint) != "" {
		root = f.Resolve(pathHint)
	}

	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := searchIgnoredDirs[d.Name()]; skip {
				return fs.SkipDir
			}
			if depth(root, path) >= searchMaxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if strings.Contains(strings.ToLower(d.Name()), needle) {
			found = append(found, path)
			if len(found) >= searchMaxResults {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "No files found.", nil
	}
	return strings.Join(found, "\n"), nil
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// Read returns the file's text, truncated past the read cap.
func (f *Files) Read(path string) (string, error) {
	target := f.Resolve(path)
	info, err := os.Stat(target)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("'%s' is a directory. Use read_directory to list it", target)
	}
	file, err := os.Open(target)
	if err != nil {
		return "", err
	}
	defer file.Close()

	buf, err := io.ReadAll(io.LimitReader(file, readMaxBytes))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("'%s' is not a text file", target)
	}
	out := string(buf)
	if info.Size() > readMaxBytes {
		out += fmt.Sprintf("\n[truncated: showing %d of %d bytes]", readMaxBytes, info.Size())
	}
	return out, nil
}

// Write saves content. Bare file names land in the workspace directory.
func (f *Files) Write(nameOrPath, content string) (string, error) {
	target := f.WriteTarget(nameOrPath)
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return "", err
	}
	return "Success. File saved to: " + target, nil
}

func (f *Files) WriteTarget(nameOrPath string) string {
	name := strings.TrimSpace(nameOrPath)
	if strings.ContainsAny(name, `/\`) {
		return f.Resolve(name)
	}
	return filepath.Join(f.workspace, name)
}

// Manage copies, moves or deletes src.
func (f *Files) Manage(op, src, dst string) (string, error) {
	from := f.Resolve(src)
	switch strings.ToLower(strings.TrimSpace(op)) {
	case "copy":
		to := f.Resolve(dst)
		if err := copyFile(from, to); err != nil {
			return "", err
		}
		return fmt.Sprintf("Copied %s to %s", from, to), nil
	case "move":
		to := f.Resolve(dst)
		if err := moveFile(from, to); err != nil {
			return "", err
		}
		return fmt.Sprintf("Moved %s to %s", from, to), nil
	case "delete":
		info, err := os.Stat(from)
		if err != nil {
			return "", err
		}
		if info.IsDir() {
			err = os.RemoveAll(from)
		} else {
			err = os.Remove(from)
		}
		if err != nil {
			return "", err
		}
		return "Deleted " + from, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOp, op)
	}
}

func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("'%s' is a directory; only files can be copied", from)
	}
	if st, err := os.Stat(to); err == nil && st.IsDir() {
		to = filepath.Join(to, filepath.Base(from))
	}
	out, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func moveFile(from, to string) error {
	if st, err := os.Stat(to); err == nil && st.IsDir() {
		to = filepath.Join(to, filepath.Base(from))
	}
	if err := os.Rename(from, to); err == nil {
		return nil
	}
	// Cross-device moves fall back to copy and remove.
	if err := copyFile(from, to); err != nil {
		return err
	}
	return os.Remove(from)
}

// Open hands the path to the platform's default application.
func (f *Files) Open(path string) error {
	return f.opener.Open(f.Resolve(path))
}

// Resolve maps folder aliases, drive letters and relative paths onto absolute paths.
func (f *Files) Resolve(raw string) string {
	in := strings.TrimSpace(raw)
	lower := strings.ToLower(in)
	switch {
	case runtime.GOOS == "windows" && isDriveLetter(in):
		return strings.ToUpper(in[:1]) + `:\`
	case lower == "home" || lower == "~" || lower == "":
		return f.home
	case strings.HasPrefix(in, "~/"):
		return filepath.Join(f.home, in[2:])
	}
	if dir, ok := folderAliases[lower]; ok {
		return filepath.Join(f.home, dir)
	}
	if filepath.IsAbs(in) {
		return filepath.Clean(in)
	}
	return filepath.Join(f.home, in)
}

var folderAliases = map[string]string{
	"desktop":   "Desktop",
	"documents": "Documents",
	"downloads": "Downloads",
	"music":     "Music",
	"pictures":  "Pictures",
	"videos":    "Videos",
}

func isDriveLetter(s string) bool {
	if len(s) == 0 || len(s) > 2 {
		return false
	}
	c := s[0] | 0x20
	if c < 'a' || c > 'z' {
		return false
	}
	return len(s) == 1 || s[1] == ':'
}

// DirEntry is one row of a directory listing.
type DirEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
	Info string `json:"info"`
}

// Listing is the JSON document returned by ListDirectory.
type Listing struct {
	Directory  string     `json:"directory"`
	ItemsFound int        `json:"items_found"`
	Content    []DirEntry `json:"content"`
}

// ListDirectory lists visible entries, folders first then newest, capped at thirty.
func (f *Files) ListDirectory(path string) (string, error) {
	target := f.Resolve(path)
	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("directory not found at '%s'", target)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: '%s' is a file. Use read_file to read it", ErrNotDirectory, target)
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return "", err
	}

	type item struct {
		name  string
		dir   bool
		mtime int64
		size  int64
	}
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		it := item{name: e.Name(), dir: e.IsDir()}
		if fi, err := e.Info(); err == nil {
			it.mtime = fi.ModTime().UnixNano()
			it.size = fi.Size()
		}
		items = append(items, it)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].dir != items[j].dir {
			return items[i].dir
		}
		return items[i].mtime > items[j].mtime
	})
	if len(items) > listMaxItems {
		items = items[:listMaxItems]
	}

	out := Listing{Directory: target, Content: make([]DirEntry, 0, len(items))}
	for _, it := range items {
		kind := fileType(it.name, it.dir)
		entry := DirEntry{Name: it.name, Type: kind, Path: filepath.Join(target, it.name)}
		if it.dir {
			entry.Info = fmt.Sprintf("[DIR] - Use 'read_directory(\"%s\")' to open this folder.", it.name)
		} else {
			entry.Info = fmt.Sprintf("[%s | %.1fKB]", strings.ToUpper(kind), float64(it.size)/1024)
		}
		out.Content = append(out.Content, entry)
	}
	out.ItemsFound = len(out.Content)

	raw, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

var fileTypesByExt = func() map[string]string {
	m := make(map[string]string)
	for kind, exts := range map[string][]string{
		"text": {".txt", ".md", ".js", ".ts", ".jsx", ".tsx", ".json", ".html", ".css", ".py", ".java",
			".c", ".cpp", ".h", ".go", ".csv", ".env", ".log", ".xml", ".yml", ".yaml"},
		"image":      {".png", ".jpg", ".jpeg", ".gif", ".bmp", ".svg", ".webp"},
		"video":      {".mp4", ".mkv", ".avi", ".mov", ".webm"},
		"executable": {".exe", ".msi", ".bat", ".sh", ".app", ".dmg"},
	} {
		for _, ext := range exts {
			m[ext] = kind
		}
	}
	return m
}()

func fileType(name string, isDir bool) string {
	if isDir {
		return "directory"
	}
	if kind, ok := fileTypesByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return kind
	}
	return "unknown"
}
