package spec

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"net/http"
)

//go:embed openapi.yaml
var documentFS embed.FS

var (
	document []byte
	etag     string
)

func init() {
	document, _ = documentFS.ReadFile("openapi.yaml")
	sum := sha256.Sum256(document)
	etag = `"` + hex.EncodeToString(sum[:8]) + `"`
}

// Document returns the ledger API description.
func Document() []byte {
	return document
}

// OpenAPIHandler serves the API description with a content ETag so the
// swagger UI can revalidate instead of refetching.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(document) == 0 {
			http.Error(w, "api description not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, max-age=300")
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(document)
	}
}
