package refapi

import (
	"io"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"github.com/pulseboard/feedmirror/internal/media"
)

// mediaStore keeps uploaded attachments in memory, which is enough for the
// reference backend.
type mediaStore struct {
	mu    sync.RWMutex
	blobs map[string]storedBlob
}

type storedBlob struct {
	contentType string
	data        []byte
}

func newMediaStore() *mediaStore {
	return &mediaStore{
		blobs: make(map[string]storedBlob),
	}
}

var extByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func (s server) uploadMedia(w http.ResponseWriter, r *http.Request) {
	if viewer(r) == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, media.MaxFileSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	name := r.URL.Query().Get("name")

	ct, err := media.Validate(media.File{Name: name, Data: data})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file := uuid.NewString() + extByType[ct]

	s.m.mu.Lock()
	s.m.blobs[file] = storedBlob{contentType: ct, data: data}
	s.m.mu.Unlock()

	writeOK(w, http.StatusCreated, UploadResponse{URL: "/v1/media/" + file})
}

func (s server) getMedia(w http.ResponseWriter, r *http.Request) {
	file := filepath.Base(chi.URLParam(r, "file"))

	s.m.mu.RLock()
	blob, ok := s.m.blobs[file]
	s.m.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Type", blob.contentType)
	w.Write(blob.data) // nolint:errcheck
}
