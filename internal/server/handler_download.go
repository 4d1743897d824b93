package server

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/fileutil"
	"github.com/go-chi/chi/v5"
)

// generatedName matches the keys handleCloneVoice writes. The store may hold
// other objects, such as worker inputs, which are never served.
var generatedName = regexp.MustCompile(
	"^" + regexp.QuoteMeta(audioKeyPrefix) +
		"[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}" +
		regexp.QuoteMeta(audioKeySuffix) + "$",
)

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if !generatedName.MatchString(name) {
		writeError(w, http.StatusNotFound, msgAudioNotFound)

		return
	}

	data, err := h.store.Download(r.Context(), name)
	if err != nil {
		if errors.Is(err, core.ErrObjectNotFound) || errors.Is(err, fileutil.ErrUnsafeName) {
			writeError(w, http.StatusNotFound, msgAudioNotFound)

			return
		}

		h.log.Error("Failed to read generated audio %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, msgInternal)

		return
	}

	w.Header().Set("Content-Type", fileutil.AudioContentType(name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write(data)
}
