package api

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tom-jordan23/cooking-mcp/internal/models"
)

const maxUploadBytes = 10 << 20 // 10 MB

var (
	allowedExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true,
		".gif": true, ".webp": true, ".svg": true, ".pdf": true,
	}

	mimeToExt = map[string]string{
		"image/png":       ".png",
		"image/jpeg":      ".jpg",
		"image/gif":       ".gif",
		"image/webp":      ".webp",
		"image/svg+xml":   ".svg",
		"application/pdf": ".pdf",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// ListAttachments handles GET /api/entries/{id}/attachments.
//
//	@Summary		List an entry's attachments
//	@Tags			attachments
//	@Produce		json
//	@Param			id	path		string	true	"Entry id"
//	@Success		200	{object}	AttachmentListResponse
//	@Failure		404	{object}	errResponse
//	@Router			/entries/{id}/attachments [get]
func (h *Handler) ListAttachments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := models.ValidateID(id); err != nil {
		respondError(w, err)
		return
	}
	if _, err := h.svc.Get(r.Context(), id, false); err != nil {
		respondError(w, err)
		return
	}
	files, err := h.svc.ListAttachments(r.Context(), id)
	if err != nil {
		slog.Error("list attachments failed", slog.String("id", id), slog.String("error", err.Error()))
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id":    id,
		"attachments": files,
	})
}

// UploadAttachment handles POST /api/entries/{id}/attachments
// (multipart/form-data, field "file"). The filename is sanitized and the
// content must match the declared extension before anything reaches the
// mirror.
//
//	@Summary		Upload an attachment for an entry
//	@Tags			attachments
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			id		path		string	true	"Entry id"
//	@Param			file	formData	file	true	"File to upload"
//	@Param			X-Actor	header		string	false	"Caller label recorded in the commit message"
//	@Success		201		{object}	AttachmentUploadResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/entries/{id}/attachments [post]
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := models.ValidateID(id); err != nil {
		respondError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart", "E_SCHEMA"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form", "E_SCHEMA"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file", "E_SCHEMA"))
		return
	}

	filename := sanitizeFilename(header.Filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		writeJSON(w, http.StatusBadRequest, errorBody(
			fmt.Sprintf("unsupported file extension: %s (allowed: png, jpg, jpeg, gif, webp, svg, pdf)", ext), "E_SCHEMA"))
		return
	}
	if err := validateMagicBytes(data, ext); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error(), "E_SCHEMA"))
		return
	}

	path, sha, err := h.svc.SaveAttachment(r.Context(), id, filename, data, r.Header.Get(actorHeader))
	if err != nil {
		slog.Error("save attachment failed",
			slog.String("id", id),
			slog.String("filename", filename),
			slog.String("error", err.Error()))
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"entry_id":   id,
		"filename":   filename,
		"path":       path,
		"size":       int64(len(data)),
		"commit_sha": sha,
	})
}

// GetAttachment handles GET /api/entries/{id}/attachments/{filename}.
//
//	@Summary		Download one attachment
//	@Tags			attachments
//	@Param			id			path	string	true	"Entry id"
//	@Param			filename	path	string	true	"Attachment filename"
//	@Success		200			"File content"
//	@Failure		404			{object}	errResponse
//	@Router			/entries/{id}/attachments/{filename} [get]
func (h *Handler) GetAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := models.ValidateID(id); err != nil {
		respondError(w, err)
		return
	}

	// Reject anything with path separators or traversal.
	filename := chi.URLParam(r, "filename")
	cleaned := filepath.Clean(filename)
	if cleaned == "" || cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid filename", "E_SCHEMA"))
		return
	}

	data, ok, err := h.svc.ReadAttachment(r.Context(), id, cleaned)
	if err != nil {
		respondError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found", "E_NOT_FOUND"))
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// sanitizeFilename strips path separators and unsafe characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." {
		name = uuid.New().String()
	}
	return name
}

// validateMagicBytes verifies file content matches the declared extension.
func validateMagicBytes(data []byte, ext string) error {
	if ext == ".svg" {
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if !bytes.Contains(prefix, []byte("<svg")) {
			return fmt.Errorf("content does not appear to be a valid SVG (missing <svg tag)")
		}
		return nil
	}

	detected := http.DetectContentType(data)
	expected := mimeToExt[strings.Split(detected, ";")[0]]

	switch ext {
	case ".jpg", ".jpeg":
		if expected != ".jpg" && expected != ".jpeg" {
			return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
		}
	default:
		if expected != ext {
			return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
		}
	}
	return nil
}
