package httpapi

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var uiFiles embed.FS

// newStaticHandler serves the control panel. Files are small, so caching is disabled.
func newStaticHandler() http.Handler {
	root, err := fs.Sub(uiFiles, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	files := http.FileServer(http.FS(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		files.ServeHTTP(w, r)
	})
}
