package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hszk-dev/lumina/internal/domain/model"
	"github.com/hszk-dev/lumina/internal/domain/repository"
	"github.com/hszk-dev/lumina/internal/imaging/pipeline"
	"github.com/hszk-dev/lumina/internal/imaging/preset"
	"github.com/hszk-dev/lumina/internal/imaging/watermark"
	"github.com/hszk-dev/lumina/internal/usecase"
)

// DefaultMaxUploadBytes caps originals streamed through the API.
const DefaultMaxUploadBytes = 200 << 20

// Request/Response types

type CreatePhotoRequest struct {
	FileName string `json:"file_name"`
}

type CreatePhotoResponse struct {
	ID        string `json:"id"`
	AlbumID   string `json:"album_id"`
	FileName  string `json:"file_name"`
	Status    string `json:"status"`
	UploadURL string `json:"upload_url"`
	CreatedAt string `json:"created_at"`
}

type ProcessPhotoRequest struct {
	Rotation    *int                   `json:"rotation,omitempty"`
	StylePreset string                 `json:"style_preset,omitempty"`
	Watermark   *model.WatermarkConfig `json:"watermark,omitempty"`
}

type PhotoResponse struct {
	ID         string          `json:"id"`
	AlbumID    string          `json:"album_id"`
	FileName   string          `json:"file_name"`
	Status     string          `json:"status"`
	Width      int             `json:"width,omitempty"`
	Height     int             `json:"height,omitempty"`
	BlurHash   string          `json:"blur_hash,omitempty"`
	EXIF       json.RawMessage `json:"exif,omitempty"`
	ThumbURL   string          `json:"thumb_url,omitempty"`
	PreviewURL string          `json:"preview_url,omitempty"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

type PhotoListResponse struct {
	Photos []PhotoResponse `json:"photos"`
}

// PhotoHandler handles photo-related HTTP requests.
type PhotoHandler struct {
	svc            usecase.UploadService
	maxUploadBytes int64
}

// NewPhotoHandler creates a new PhotoHandler. A non-positive maxUploadBytes
// selects DefaultMaxUploadBytes.
func NewPhotoHandler(svc usecase.UploadService, maxUploadBytes int64) *PhotoHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &PhotoHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// Routes mounts the photo endpoints under r.
func (h *PhotoHandler) Routes(r chi.Router) {
	r.Post("/albums/{albumID}/photos", h.Create)
	r.Get("/albums/{albumID}/photos", h.List)
	r.Get("/photos/{id}", h.Get)
	r.Put("/photos/{id}/original", h.UploadOriginal)
	r.Post("/photos/{id}/process", h.TriggerProcess)
	r.Get("/presets", ListPresets)
}

type PresetsResponse struct {
	Presets []string `json:"presets"`
}

// ListPresets handles GET /v1/presets
func ListPresets(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, PresetsResponse{Presets: preset.List()})
}

// Create handles POST /v1/albums/{albumID}/photos
func (h *PhotoHandler) Create(w http.ResponseWriter, r *http.Request) {
	albumID, err := uuid.Parse(chi.URLParam(r, "albumID"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_album_id", "Album ID must be a valid UUID")
		return
	}

	var req CreatePhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if req.FileName == "" {
		Error(w, http.StatusBadRequest, "invalid_file_name", "File name is required")
		return
	}

	output, err := h.svc.CreatePhoto(r.Context(), usecase.CreatePhotoInput{
		AlbumID:  albumID,
		FileName: req.FileName,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusCreated, CreatePhotoResponse{
		ID:        output.Photo.ID.String(),
		AlbumID:   output.Photo.AlbumID.String(),
		FileName:  output.Photo.FileName,
		Status:    output.Photo.Status.String(),
		UploadURL: output.UploadURL,
		CreatedAt: output.Photo.CreatedAt.Format(time.RFC3339),
	})
}

// List handles GET /v1/albums/{albumID}/photos
func (h *PhotoHandler) List(w http.ResponseWriter, r *http.Request) {
	albumID, err := uuid.Parse(chi.URLParam(r, "albumID"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_album_id", "Album ID must be a valid UUID")
		return
	}

	photos, err := h.svc.ListPhotos(r.Context(), albumID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	resp := PhotoListResponse{Photos: make([]PhotoResponse, 0, len(photos))}
	for _, p := range photos {
		resp.Photos = append(resp.Photos, toPhotoResponse(&usecase.PhotoOutput{Photo: p}))
	}
	JSON(w, http.StatusOK, resp)
}

// UploadOriginal handles PUT /v1/photos/{id}/original
func (h *PhotoHandler) UploadOriginal(w http.ResponseWriter, r *http.Request) {
	photoID, ok := parsePhotoID(w, r)
	if !ok {
		return
	}

	err := h.svc.UploadOriginal(r.Context(), usecase.UploadOriginalInput{
		PhotoID:     photoID,
		Body:        http.MaxBytesReader(w, r.Body, h.maxUploadBytes),
		ContentType: r.Header.Get("Content-Type"),
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TriggerProcess handles POST /v1/photos/{id}/process
func (h *PhotoHandler) TriggerProcess(w http.ResponseWriter, r *http.Request) {
	photoID, ok := parsePhotoID(w, r)
	if !ok {
		return
	}

	var req ProcessPhotoRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
			return
		}
	}

	input := usecase.TriggerProcessInput{
		PhotoID:     photoID,
		StylePreset: req.StylePreset,
	}

	if req.Rotation != nil {
		deg, err := pipeline.NormalizeRotation(*req.Rotation)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid_rotation", "Rotation must be 0, 90, 180 or 270")
			return
		}
		input.Rotation = &deg
	}

	if req.Watermark != nil {
		if err := validateWatermarks(*req.Watermark); err != nil {
			Error(w, http.StatusBadRequest, "invalid_watermark", err.Error())
			return
		}
		input.Watermark = *req.Watermark
	}

	if err := h.svc.TriggerProcess(r.Context(), input); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Get handles GET /v1/photos/{id}
func (h *PhotoHandler) Get(w http.ResponseWriter, r *http.Request) {
	photoID, ok := parsePhotoID(w, r)
	if !ok {
		return
	}

	output, err := h.svc.GetPhoto(r.Context(), photoID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, toPhotoResponse(output))
}

func parsePhotoID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	photoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_photo_id", "Photo ID must be a valid UUID")
		return uuid.Nil, false
	}
	return photoID, true
}

// validateWatermarks enforces the per-photo cap and that each enabled
// watermark is renderable.
func validateWatermarks(cfg model.WatermarkConfig) error {
	if len(cfg.Watermarks) > watermark.MaxWatermarks {
		return fmt.Errorf("at most %d watermarks are allowed", watermark.MaxWatermarks)
	}
	for i, wm := range cfg.Watermarks {
		if !wm.IsEnabled() {
			continue
		}
		if err := wm.Validate(); err != nil {
			return fmt.Errorf("watermark %d: %w", i, err)
		}
	}
	return nil
}

func (h *PhotoHandler) handleServiceError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, repository.ErrPhotoNotFound):
		Error(w, http.StatusNotFound, "photo_not_found", "Photo not found")
	case errors.Is(err, model.ErrInvalidAlbumID):
		Error(w, http.StatusBadRequest, "invalid_album_id", "Album ID cannot be empty")
	case errors.Is(err, model.ErrEmptyFileName):
		Error(w, http.StatusBadRequest, "invalid_file_name", "File name cannot be empty")
	case errors.Is(err, model.ErrFileNameTooLong):
		Error(w, http.StatusBadRequest, "invalid_file_name", "File name exceeds maximum length")
	case errors.Is(err, usecase.ErrEmptyUpload):
		Error(w, http.StatusBadRequest, "empty_upload", "Upload body is empty")
	case errors.As(err, &maxBytesErr):
		Error(w, http.StatusRequestEntityTooLarge, "upload_too_large", "Upload exceeds the maximum size")
	case errors.Is(err, usecase.ErrPhotoNotAwaitingUpload):
		Error(w, http.StatusConflict, "photo_not_awaiting_upload", "Photo original has already been uploaded")
	case errors.Is(err, usecase.ErrPhotoAlreadyCompleted):
		Error(w, http.StatusConflict, "photo_already_completed", "Photo processing has already completed")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func toPhotoResponse(out *usecase.PhotoOutput) PhotoResponse {
	p := out.Photo
	resp := PhotoResponse{
		ID:         p.ID.String(),
		AlbumID:    p.AlbumID.String(),
		FileName:   p.FileName,
		Status:     p.Status.String(),
		Width:      p.Width,
		Height:     p.Height,
		BlurHash:   p.BlurHash,
		ThumbURL:   out.ThumbURL,
		PreviewURL: out.PreviewURL,
		CreatedAt:  p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  p.UpdatedAt.Format(time.RFC3339),
	}
	if len(p.EXIF) > 0 {
		resp.EXIF = json.RawMessage(p.EXIF)
	}
	return resp
}
