package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/iris/internal/desktop"
	"github.com/ent0n29/iris/internal/policy"
	"github.com/ent0n29/iris/internal/protocol"
)

// Desktop groups the local collaborators behind the built-in tools.
type Desktop struct {
	Files     *desktop.Files
	Apps      *desktop.AppLauncher
	Processes desktop.ProcessEnumerator
	Stats     desktop.StatsProvider
}

func str(desc string) *protocol.Schema {
	return &protocol.Schema{Type: "string", Description: desc}
}

func object(required []string, props map[string]*protocol.Schema) *protocol.Schema {
	return &protocol.Schema{Type: "object", Properties: props, Required: required}
}

// RegisterDesktop installs the built-in desktop tool set.
func RegisterDesktop(r *Registry, d Desktop) error {
	defs := []struct {
		decl    protocol.FunctionDeclaration
		handler Handler
	}{
		{
			protocol.FunctionDeclaration{
				Name:        "search_files",
				Description: "Find files by (partial) name. Returns up to five absolute paths.",
				Parameters: object([]string{"fileName"}, map[string]*protocol.Schema{
					"fileName":   str("Part of the file name to look for."),
					"searchPath": str("Folder to search in, e.g. 'documents'. Defaults to the home folder."),
				}),
			},
			func(ctx context.Context, a Args) (any, error) {
				name, err := named(a, "fileName")
				if err != nil {
					return nil, err
				}
				return d.Files.Search(ctx, name, a.String("searchPath"))
			},
		},
		{
			protocol.FunctionDeclaration{
				Name:        "read_file",
				Description: "Read a text file and return its content.",
				Parameters: object([]string{"filePath"}, map[string]*protocol.Schema{
					"filePath": str("Absolute path or path relative to the home folder."),
				}),
			},
			func(_ context.Context, a Args) (any, error) {
				name, err := named(a, "filePath")
				if err != nil {
					return nil, err
				}
				path := d.Files.Resolve(name)
				if err := guard(policy.OpRead, path); err != nil {
					return nil, err
				}
				return d.Files.Read(path)
			},
		},
		{
			protocol.FunctionDeclaration{
				Name:        "write_file",
				Description: "Create or overwrite a file. A bare file name is saved on the Desktop.",
				Parameters: object([]string{"fileName", "content"}, map[string]*protocol.Schema{
					"fileName": str("File name or full path."),
					"content":  str("Text to write."),
				}),
			},
			func(_ context.Context, a Args) (any, error) {
				name, err := named(a, "fileName")
				if err != nil {
					return nil, err
				}
				target := d.Files.WriteTarget(name)
				if err := guard(policy.OpWrite, target); err != nil {
					return nil, err
				}
				return d.Files.Write(target, rawString(a, "content"))
			},
		},
		{
			protocol.FunctionDeclaration{
				Name:        "manage_file",
				Description: "Copy, move or delete a file.",
				Parameters: object([]string{"operation", "sourcePath"}, map[string]*protocol.Schema{
					"operation":  {Type: "string", Enum: []string{"copy", "move", "delete"}},
					"sourcePath": str("File to act on."),
					"destPath":   str("Destination for copy and move."),
				}),
			},
			func(_ context.Context, a Args) (any, error) {
				op := strings.ToLower(a.String("operation"))
				name, err := named(a, "sourcePath")
				if err != nil {
					return nil, err
				}
				src := d.Files.Resolve(name)
				dst := a.String("destPath")
				if op != "delete" && dst == "" {
					return nil, fmt.Errorf("%w: destPath is required for %s", ErrInvalidArgs, op)
				}
				if err := guard(policy.FileOp(op), src); err != nil {
					return nil, err
				}
				if dst != "" {
					if err := guard(policy.OpWrite, d.Files.Resolve(dst)); err != nil {
						return nil, err
					}
				}
				return d.Files.Manage(op, src, dst)
			},
		},
		{
			protocol.FunctionDeclaration{
				Name:        "open_file",
				Description: "Open a file or folder with its default application.",
				Parameters: object([]string{"filePath"}, map[string]*protocol.Schema{
					"filePath": str("Path to open."),
				}),
			},
			func(_ context.Context, a Args) (any, error) {
				name, err := named(a, "filePath")
				if err != nil {
					return nil, err
				}
				path := d.Files.Resolve(name)
				if err := guard(policy.OpOpen, path); err != nil {
					return nil, err
				}
				if err := d.Files.Open(path); err != nil {
					return nil, err
				}
				return "Opened " + path, nil
			},
		},
		{
			protocol.FunctionDeclaration{
				Name:        "read_directory",
				Description: "List a folder: folders first, then newest files. Accepts aliases like 'desktop' or 'downloads'.",
				Parameters: object([]string{"directoryPath"}, map[string]*protocol.Schema{
					"directoryPath": str("Folder path or alias."),
				}),
			},
			func(_ context.Context, a Args) (any, error) {
				name, err := named(a, "directoryPath")
				if err != nil {
					return nil, err
				}
				path := d.Files.Resolve(name)
				if err := guard(policy.OpList, path); err != nil {
					return nil, err
				}
				return d.Files.ListDirectory(path)
			},
		},
		{
			protocol.FunctionDeclaration{
				Name:        "get_running_apps",
				Description: "List applications currently running for this user.",
			},
			func(ctx context.Context, _ Args) (any, error) {
				names, err := d.Processes.Snapshot(ctx)
				if err != nil {
					return nil, err
				}
				if names == nil {
					names = []string{}
				}
				return names, nil
			},
		},
		{
			protocol.FunctionDeclaration{
				Name:        "open_app",
				Description: "Launch an application by name, e.g. 'spotify' or 'vscode'.",
				Parameters: object([]string{"appName"}, map[string]*protocol.Schema{
					"appName": str("Application name as the user said it."),
				}),
			},
			func(ctx context.Context, a Args) (any, error) {
				name, err := named(a, "appName")
				if err != nil {
					return nil, err
				}
				return d.Apps.Launch(ctx, name)
			},
		},
		{
			protocol.FunctionDeclaration{
				Name:        "get_system_stats",
				Description: "Report CPU, memory, temperature, OS and uptime.",
			},
			func(ctx context.Context, _ Args) (any, error) {
				return d.Stats.Stats(ctx)
			},
		},
	}
	for _, def := range defs {
		if err := r.Register(def.decl, def.handler); err != nil {
			return err
		}
	}
	return nil
}

func guard(op policy.FileOp, path string) error {
	decision := policy.DecideFileOp(op, path)
	if decision.Blocked {
		return fmt.Errorf("%w: %s", ErrBlocked, decision.Reason)
	}
	return nil
}

// named returns a trimmed name or path argument, rejecting blanks.
func named(a Args, key string) (string, error) {
	v := a.String(key)
	if v == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrInvalidArgs, key)
	}
	return v, nil
}

// rawString keeps content untrimmed.
func rawString(a Args, key string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return a.String(key)
}
