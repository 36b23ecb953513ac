package server

import (
	"embed"
	"fmt"
	"hash/fnv"
	"io/fs"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

//go:embed static/*
var staticFiles embed.FS

var staticFS = sync.OnceValue(func() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("Failed to create sub filesystem: " + err.Error())
	}
	return sub
})

// contentType picks the type from the extension and sniffs unknown ones. Text is served as UTF-8.
func contentType(name string, data []byte) string {
	ctype := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	if strings.HasPrefix(ctype, "text/") && !strings.Contains(strings.ToLower(ctype), "charset=") {
		ctype += "; charset=utf-8"
	}
	return ctype
}

func etag(data []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf(`"%x"`, h.Sum64())
}

// serveFileHandler serves the embedded console assets with an ETag so revalidation is cheap.
func (s *Server) serveFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("file")
		if name == "" || !fs.ValidPath(name) {
			http.NotFound(w, r)
			return
		}
		data, err := fs.ReadFile(staticFS(), name)
		if err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Str("file", name).Msg("Static file not found")
			http.NotFound(w, r)
			return
		}

		tag := etag(data)
		w.Header().Set("ETag", tag)
		if r.Header.Get("If-None-Match") == tag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", contentType(name, data))
		_, _ = w.Write(data)
	}
}
