package httpapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/chordbook/internal/app"
	"github.com/cesargomez89/chordbook/internal/backup"
	"github.com/cesargomez89/chordbook/internal/codec"
	"github.com/cesargomez89/chordbook/internal/domain"
)

// maxImportBytes bounds uploaded snapshot size.
const maxImportBytes = 20 << 20

type songRequest struct {
	Name string `json:"name"`
}

type progressionRequest struct {
	Name   string         `json:"name"`
	Chords []domain.Chord `json:"chords"`
	BPM    *int           `json:"bpm,omitempty"`
}

func (h *Handler) ListSongs(w http.ResponseWriter, r *http.Request) {
	songs := h.Songs.Songs()
	h.respondJSON(w, http.StatusOK, codec.SerializeSongs(songs))
}

func (h *Handler) CreateSong(w http.ResponseWriter, r *http.Request) {
	var req songRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		h.respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	song := h.Songs.CreateSong(strings.TrimSpace(req.Name))
	h.respondJSON(w, http.StatusCreated, codec.SerializeSong(song))
}

func (h *Handler) GetSong(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	song, err := h.Songs.GetSong(id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, codec.SerializeSong(song))
}

func (h *Handler) RenameSong(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req songRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		h.respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	song, err := h.Songs.RenameSong(id, strings.TrimSpace(req.Name))
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, codec.SerializeSong(song))
}

func (h *Handler) DeleteSong(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Songs.DeleteSong(id); err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) OpenSong(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	song, err := h.Songs.OpenSong(id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, codec.SerializeSong(song))
}

func (h *Handler) GetCurrentSong(w http.ResponseWriter, r *http.Request) {
	song := h.Songs.CurrentSong()
	if song == nil {
		h.respondJSON(w, http.StatusOK, nil)
		return
	}
	h.respondJSON(w, http.StatusOK, codec.SerializeSong(song))
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req app.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	song, err := h.Songs.UpdateSettings(id, req)
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, codec.SerializeSong(song))
}

func (h *Handler) AddProgression(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req progressionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		h.respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	prog, err := h.Songs.AddProgression(id, strings.TrimSpace(req.Name), req.Chords, req.BPM)
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondJSON(w, http.StatusCreated, codec.SerializeProgression(prog))
}

func (h *Handler) UpdateProgression(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	progID := chi.URLParam(r, "progID")
	var req progressionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prog, err := h.Songs.UpdateProgression(id, progID, req.Name, req.Chords, req.BPM)
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, codec.SerializeProgression(prog))
}

func (h *Handler) DeleteProgression(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	progID := chi.URLParam(r, "progID")
	if err := h.Songs.DeleteProgression(id, progID); err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListCustomChords(w http.ResponseWriter, r *http.Request) {
	chords, err := h.Songs.CustomChords()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if chords == nil {
		chords = []domain.Chord{}
	}
	h.respondJSON(w, http.StatusOK, chords)
}

func (h *Handler) AddCustomChord(w http.ResponseWriter, r *http.Request) {
	var chord domain.Chord
	if err := json.NewDecoder(r.Body).Decode(&chord); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if chord.Name == "" || len(chord.Notes) == 0 {
		h.respondError(w, http.StatusBadRequest, "name and notes are required")
		return
	}

	if err := h.Songs.AddCustomChord(chord); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusCreated, chord)
}

func (h *Handler) RemoveCustomChord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.Songs.RemoveCustomChord(name); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"autosave":  h.Songs.AutoSaveStatus(),
		"ratelimit": h.Songs.RateLimitStatus(),
		"songs":     len(h.Songs.Songs()),
	})
}

func (h *Handler) ReenableAutoSave(w http.ResponseWriter, r *http.Request) {
	h.Songs.ReenableAutoSave()
	h.respondJSON(w, http.StatusOK, h.Songs.AutoSaveStatus())
}

func (h *Handler) SaveNow(w http.ResponseWriter, r *http.Request) {
	if err := h.Songs.SaveNow(); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ExportBackup(w http.ResponseWriter, r *http.Request) {
	data, name, err := h.Backups.ExportSnapshot()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}

func (h *Handler) ImportBackup(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	snap, err := h.Backups.ImportSnapshot(raw)
	if err != nil {
		var importErr *backup.ImportError
		if errors.As(err, &importErr) {
			h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":  "invalid backup snapshot",
				"fields": importErr.Errors,
			})
			return
		}
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Backups.Restore(snap); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.Logger.Info("Library restored from uploaded snapshot", "songs", len(snap.Songs))
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"restored": len(snap.Songs),
	})
}
