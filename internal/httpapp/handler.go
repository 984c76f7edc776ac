package httpapp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/chordbook/internal/app"
	"github.com/cesargomez89/chordbook/internal/backup"
	"github.com/cesargomez89/chordbook/internal/logger"
)

type Handler struct {
	Songs   *app.SongService
	Backups *backup.Service
	Logger  *logger.Logger
}

func NewHandler(songs *app.SongService, backups *backup.Service, log *logger.Logger) *Handler {
	return &Handler{
		Songs:   songs,
		Backups: backups,
		Logger:  log.WithComponent("http"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/songs", h.ListSongs)
		r.Post("/songs", h.CreateSong)
		r.Get("/songs/{id}", h.GetSong)
		r.Put("/songs/{id}", h.RenameSong)
		r.Delete("/songs/{id}", h.DeleteSong)
		r.Post("/songs/{id}/open", h.OpenSong)
		r.Put("/songs/{id}/settings", h.UpdateSettings)

		r.Post("/songs/{id}/progressions", h.AddProgression)
		r.Put("/songs/{id}/progressions/{progID}", h.UpdateProgression)
		r.Delete("/songs/{id}/progressions/{progID}", h.DeleteProgression)

		r.Get("/current-song", h.GetCurrentSong)

		r.Get("/chords", h.ListCustomChords)
		r.Post("/chords", h.AddCustomChord)
		r.Delete("/chords/{name}", h.RemoveCustomChord)

		r.Get("/status", h.GetStatus)
		r.Post("/autosave/reenable", h.ReenableAutoSave)
		r.Post("/save", h.SaveNow)

		r.Get("/backup/export", h.ExportBackup)
		r.Post("/backup/import", h.ImportBackup)
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
