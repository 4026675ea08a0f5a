package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vitality-ai/warpdrive/internal/logger"
)

// nativeHandlers implements the key/value API in spec.md §6.
type nativeHandlers struct {
	app *App
}

// Put handles POST /put/{key}.
func (h *nativeHandlers) Put(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	t, err := nativeTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.EnrichContext(r.Context(), t.UserID, t.Bucket, key)
	data, err := readBody(w, r, h.app.Config.HTTP.MaxNativePayload.Int64())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.app.Pipeline.Put(r.Context(), t, key, data); err != nil {
		writeError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, "Data uploaded successfully: key = "+key+", bucket = "+t.Bucket)
}

// Get handles GET /get/{key}.
func (h *nativeHandlers) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	t, err := nativeTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.EnrichContext(r.Context(), t.UserID, t.Bucket, key)
	data, err := h.app.Pipeline.Get(r.Context(), t, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeBytes(w, data)
}

// Append handles POST /append/{key}.
func (h *nativeHandlers) Append(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	t, err := nativeTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.EnrichContext(r.Context(), t.UserID, t.Bucket, key)
	data, err := readBody(w, r, h.app.Config.HTTP.MaxNativePayload.Int64())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.app.Pipeline.Append(r.Context(), t, key, data); err != nil {
		writeError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, "Data appended successfully: key = "+key+", bucket = "+t.Bucket)
}

// Update handles POST /update/{key}.
func (h *nativeHandlers) Update(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	t, err := nativeTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.EnrichContext(r.Context(), t.UserID, t.Bucket, key)
	data, err := readBody(w, r, h.app.Config.HTTP.MaxNativePayload.Int64())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.app.Pipeline.Update(r.Context(), t, key, data); err != nil {
		writeError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, "Data updated successfully: key = "+key+", bucket = "+t.Bucket)
}

// UpdateKey handles PUT /update_key/{old}/{new}.
func (h *nativeHandlers) UpdateKey(w http.ResponseWriter, r *http.Request) {
	oldKey := chi.URLParam(r, "old")
	newKey := chi.URLParam(r, "new")
	t, err := nativeTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.EnrichContext(r.Context(), t.UserID, t.Bucket, oldKey)
	if err := h.app.Pipeline.RenameKey(r.Context(), t, oldKey, newKey); err != nil {
		writeError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, "Key renamed successfully: "+oldKey+" -> "+newKey)
}

// Delete handles DELETE /delete/{key}.
func (h *nativeHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	t, err := nativeTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.EnrichContext(r.Context(), t.UserID, t.Bucket, key)
	if err := h.app.Pipeline.Delete(r.Context(), t, key); err != nil {
		writeError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, "Data deleted successfully: key = "+key+", bucket = "+t.Bucket)
}
