package frontend

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var embedded embed.FS

var staticFS = mustSub(embedded, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// StaticHandler serves the feed page stylesheet and script. They only change with a
// deploy, so browsers may keep them for an hour.
func StaticHandler() http.Handler {
	files := http.FileServer(http.FS(staticFS))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}
