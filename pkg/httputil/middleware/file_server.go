package middleware

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// Static serves files from fsys. Directories are only served through their index.html;
// listings are never produced. Pass an fs.Sub of an embed.FS or os.DirFS.
//
// Example usage:
//
//	r.Handle("GET /", middleware.Static(os.DirFS("public")))
func Static(fsys fs.FS) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "."
		}
		if !fs.ValidPath(name) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		info, err := fs.Stat(fsys, name)
		if err == nil && info.IsDir() {
			name = path.Join(name, "index.html")
			info, err = fs.Stat(fsys, name)
		}
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if info.IsDir() {
			http.NotFound(w, r)
			return
		}

		// ServeFileFS sets Content-Type from the extension and handles ranges/conditional requests
		http.ServeFileFS(w, r, fsys, name)
	})
}
