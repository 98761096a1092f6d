package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hszk-dev/lumina/internal/domain/model"
	"github.com/hszk-dev/lumina/internal/domain/repository"
	"github.com/hszk-dev/lumina/internal/usecase"
)

// Mock UploadService

type mockUploadService struct {
	createPhotoFn    func(ctx context.Context, input usecase.CreatePhotoInput) (*usecase.CreatePhotoOutput, error)
	uploadOriginalFn func(ctx context.Context, input usecase.UploadOriginalInput) error
	triggerProcessFn func(ctx context.Context, input usecase.TriggerProcessInput) error
	getPhotoFn       func(ctx context.Context, photoID uuid.UUID) (*usecase.PhotoOutput, error)
	listPhotosFn     func(ctx context.Context, albumID uuid.UUID) ([]*model.Photo, error)
}

func (m *mockUploadService) CreatePhoto(ctx context.Context, input usecase.CreatePhotoInput) (*usecase.CreatePhotoOutput, error) {
	if m.createPhotoFn != nil {
		return m.createPhotoFn(ctx, input)
	}
	return nil, nil
}

func (m *mockUploadService) UploadOriginal(ctx context.Context, input usecase.UploadOriginalInput) error {
	if m.uploadOriginalFn != nil {
		return m.uploadOriginalFn(ctx, input)
	}
	return nil
}

func (m *mockUploadService) TriggerProcess(ctx context.Context, input usecase.TriggerProcessInput) error {
	if m.triggerProcessFn != nil {
		return m.triggerProcessFn(ctx, input)
	}
	return nil
}

func (m *mockUploadService) GetPhoto(ctx context.Context, photoID uuid.UUID) (*usecase.PhotoOutput, error) {
	if m.getPhotoFn != nil {
		return m.getPhotoFn(ctx, photoID)
	}
	return nil, nil
}

func (m *mockUploadService) ListPhotos(ctx context.Context, albumID uuid.UUID) ([]*model.Photo, error) {
	if m.listPhotosFn != nil {
		return m.listPhotosFn(ctx, albumID)
	}
	return nil, nil
}

func newTestRouter(h *PhotoHandler) http.Handler {
	r := chi.NewRouter()
	r.Route("/v1", h.Routes)
	return r
}

func serve(h *PhotoHandler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)
	return rec
}

func samplePhoto(status model.Status) *model.Photo {
	return &model.Photo{
		ID:        uuid.New(),
		AlbumID:   uuid.New(),
		FileName:  "lake.jpg",
		Status:    status,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestPhotoHandler_Create(t *testing.T) {
	tests := []struct {
		name           string
		albumID        string
		requestBody    any
		setupMock      func(m *mockUploadService)
		wantStatusCode int
		checkResponse  func(t *testing.T, body []byte)
	}{
		{
			name:        "successful creation",
			albumID:     uuid.New().String(),
			requestBody: CreatePhotoRequest{FileName: "lake.jpg"},
			setupMock: func(m *mockUploadService) {
				m.createPhotoFn = func(ctx context.Context, input usecase.CreatePhotoInput) (*usecase.CreatePhotoOutput, error) {
					photo := samplePhoto(model.StatusPendingUpload)
					photo.AlbumID = input.AlbumID
					photo.FileName = input.FileName
					return &usecase.CreatePhotoOutput{
						Photo:     photo,
						UploadURL: "http://minio:9000/photos/upload?signature=xyz",
					}, nil
				}
			},
			wantStatusCode: http.StatusCreated,
			checkResponse: func(t *testing.T, body []byte) {
				var resp CreatePhotoResponse
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if resp.UploadURL == "" {
					t.Error("expected upload URL to be non-empty")
				}
				if resp.Status != "PENDING_UPLOAD" {
					t.Errorf("expected status PENDING_UPLOAD, got %s", resp.Status)
				}
				if resp.FileName != "lake.jpg" {
					t.Errorf("expected file name lake.jpg, got %s", resp.FileName)
				}
			},
		},
		{
			name:           "invalid JSON body",
			albumID:        uuid.New().String(),
			requestBody:    "invalid json",
			setupMock:      func(m *mockUploadService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "invalid album ID",
			albumID:        "not-a-uuid",
			requestBody:    CreatePhotoRequest{FileName: "lake.jpg"},
			setupMock:      func(m *mockUploadService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "empty file name",
			albumID:        uuid.New().String(),
			requestBody:    CreatePhotoRequest{FileName: ""},
			setupMock:      func(m *mockUploadService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:        "service error - file name too long",
			albumID:     uuid.New().String(),
			requestBody: CreatePhotoRequest{FileName: "lake.jpg"},
			setupMock: func(m *mockUploadService) {
				m.createPhotoFn = func(ctx context.Context, input usecase.CreatePhotoInput) (*usecase.CreatePhotoOutput, error) {
					return nil, model.ErrFileNameTooLong
				}
			},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:        "service error - storage down",
			albumID:     uuid.New().String(),
			requestBody: CreatePhotoRequest{FileName: "lake.jpg"},
			setupMock: func(m *mockUploadService) {
				m.createPhotoFn = func(ctx context.Context, input usecase.CreatePhotoInput) (*usecase.CreatePhotoOutput, error) {
					return nil, repository.ErrBackend
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockUploadService{}
			tt.setupMock(mock)
			h := NewPhotoHandler(mock, 0)

			var body []byte
			switch v := tt.requestBody.(type) {
			case string:
				body = []byte(v)
			default:
				var err error
				body, err = json.Marshal(v)
				if err != nil {
					t.Fatalf("failed to marshal request body: %v", err)
				}
			}

			rec := serve(h, http.MethodPost, "/v1/albums/"+tt.albumID+"/photos", bytes.NewReader(body))

			if rec.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d", tt.wantStatusCode, rec.Code)
			}

			if tt.checkResponse != nil {
				tt.checkResponse(t, rec.Body.Bytes())
			}
		})
	}
}

func TestPhotoHandler_TriggerProcess(t *testing.T) {
	tests := []struct {
		name           string
		photoID        string
		body           string
		setupMock      func(t *testing.T, m *mockUploadService)
		wantStatusCode int
	}{
		{
			name:    "successful trigger without body",
			photoID: uuid.New().String(),
			setupMock: func(t *testing.T, m *mockUploadService) {
				m.triggerProcessFn = func(ctx context.Context, input usecase.TriggerProcessInput) error {
					if input.Rotation != nil {
						t.Errorf("expected no rotation, got %d", *input.Rotation)
					}
					return nil
				}
			},
			wantStatusCode: http.StatusAccepted,
		},
		{
			name:    "options are forwarded",
			photoID: uuid.New().String(),
			body:    `{"rotation":-90,"style_preset":"warm","watermark":{"enabled":true,"type":"text","text":"© Me","position":"southeast"}}`,
			setupMock: func(t *testing.T, m *mockUploadService) {
				m.triggerProcessFn = func(ctx context.Context, input usecase.TriggerProcessInput) error {
					if input.Rotation == nil || *input.Rotation != 270 {
						t.Errorf("expected normalized rotation 270, got %v", input.Rotation)
					}
					if input.StylePreset != "warm" {
						t.Errorf("expected preset warm, got %s", input.StylePreset)
					}
					if len(input.Watermark.Watermarks) != 1 || input.Watermark.Watermarks[0].Text != "© Me" {
						t.Errorf("legacy watermark not normalized: %+v", input.Watermark)
					}
					return nil
				}
			},
			wantStatusCode: http.StatusAccepted,
		},
		{
			name:           "invalid photo ID",
			photoID:        "not-a-uuid",
			setupMock:      func(t *testing.T, m *mockUploadService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "invalid rotation",
			photoID:        uuid.New().String(),
			body:           `{"rotation":45}`,
			setupMock:      func(t *testing.T, m *mockUploadService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "too many watermarks",
			photoID:        uuid.New().String(),
			body:           `{"watermark":{"enabled":true,"watermarks":[` + strings.Repeat(`{"type":"text","text":"x"},`, 6) + `{"type":"text","text":"x"}]}}`,
			setupMock:      func(t *testing.T, m *mockUploadService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "text watermark without text",
			photoID:        uuid.New().String(),
			body:           `{"watermark":{"enabled":true,"watermarks":[{"type":"text","text":"  "}]}}`,
			setupMock:      func(t *testing.T, m *mockUploadService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "oversized text watermark",
			photoID:        uuid.New().String(),
			body:           `{"watermark":{"enabled":true,"watermarks":[{"type":"text","text":"x","size":3000}]}}`,
			setupMock:      func(t *testing.T, m *mockUploadService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:    "photo not found",
			photoID: uuid.New().String(),
			setupMock: func(t *testing.T, m *mockUploadService) {
				m.triggerProcessFn = func(ctx context.Context, input usecase.TriggerProcessInput) error {
					return repository.ErrPhotoNotFound
				}
			},
			wantStatusCode: http.StatusNotFound,
		},
		{
			name:    "already completed",
			photoID: uuid.New().String(),
			setupMock: func(t *testing.T, m *mockUploadService) {
				m.triggerProcessFn = func(ctx context.Context, input usecase.TriggerProcessInput) error {
					return usecase.ErrPhotoAlreadyCompleted
				}
			},
			wantStatusCode: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockUploadService{}
			tt.setupMock(t, mock)
			h := NewPhotoHandler(mock, 0)

			rec := serve(h, http.MethodPost, "/v1/photos/"+tt.photoID+"/process", strings.NewReader(tt.body))

			if rec.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatusCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPhotoHandler_UploadOriginal(t *testing.T) {
	t.Run("streams body to the service", func(t *testing.T) {
		var got []byte
		var contentType string
		mock := &mockUploadService{
			uploadOriginalFn: func(ctx context.Context, input usecase.UploadOriginalInput) error {
				contentType = input.ContentType
				var err error
				got, err = io.ReadAll(input.Body)
				return err
			},
		}
		h := NewPhotoHandler(mock, 0)

		req := httptest.NewRequest(http.MethodPut, "/v1/photos/"+uuid.New().String()+"/original", strings.NewReader("jpeg-bytes"))
		req.Header.Set("Content-Type", "image/jpeg")
		rec := httptest.NewRecorder()
		newTestRouter(h).ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
		}
		if string(got) != "jpeg-bytes" {
			t.Errorf("expected body jpeg-bytes, got %q", got)
		}
		if contentType != "image/jpeg" {
			t.Errorf("expected content type image/jpeg, got %s", contentType)
		}
	})

	t.Run("oversized body is rejected", func(t *testing.T) {
		mock := &mockUploadService{
			uploadOriginalFn: func(ctx context.Context, input usecase.UploadOriginalInput) error {
				_, err := io.ReadAll(input.Body)
				return err
			},
		}
		h := NewPhotoHandler(mock, 4)

		rec := serve(h, http.MethodPut, "/v1/photos/"+uuid.New().String()+"/original", strings.NewReader("too many bytes"))
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected status %d, got %d", http.StatusRequestEntityTooLarge, rec.Code)
		}
	})

	t.Run("already uploaded", func(t *testing.T) {
		mock := &mockUploadService{
			uploadOriginalFn: func(ctx context.Context, input usecase.UploadOriginalInput) error {
				return usecase.ErrPhotoNotAwaitingUpload
			},
		}
		rec := serve(NewPhotoHandler(mock, 0), http.MethodPut, "/v1/photos/"+uuid.New().String()+"/original", strings.NewReader("x"))
		if rec.Code != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
		}
	})
}

func TestPhotoHandler_Get(t *testing.T) {
	tests := []struct {
		name           string
		photoID        string
		setupMock      func(m *mockUploadService)
		wantStatusCode int
		checkResponse  func(t *testing.T, body []byte)
	}{
		{
			name:    "ready photo",
			photoID: uuid.New().String(),
			setupMock: func(m *mockUploadService) {
				m.getPhotoFn = func(ctx context.Context, photoID uuid.UUID) (*usecase.PhotoOutput, error) {
					photo := samplePhoto(model.StatusReady)
					photo.ID = photoID
					photo.Width, photo.Height = 1920, 1280
					photo.BlurHash = "LEHV6nWB2yk8pyo0adR*.7kCMdnj"
					photo.EXIF = []byte(`{"Make":"Canon"}`)
					return &usecase.PhotoOutput{
						Photo:      photo,
						ThumbURL:   "https://cdn.example.com/thumb.jpg?sig=1",
						PreviewURL: "https://cdn.example.com/preview.jpg?sig=1",
					}, nil
				}
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, body []byte) {
				var resp PhotoResponse
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if resp.Status != "READY" {
					t.Errorf("expected status READY, got %s", resp.Status)
				}
				if resp.ThumbURL == "" || resp.PreviewURL == "" {
					t.Error("expected derivative URLs")
				}
				if resp.Width != 1920 || resp.Height != 1280 {
					t.Errorf("expected 1920x1280, got %dx%d", resp.Width, resp.Height)
				}
				if string(resp.EXIF) != `{"Make":"Canon"}` {
					t.Errorf("unexpected exif %s", resp.EXIF)
				}
			},
		},
		{
			name:           "invalid photo ID",
			photoID:        "not-a-uuid",
			setupMock:      func(m *mockUploadService) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:    "photo not found",
			photoID: uuid.New().String(),
			setupMock: func(m *mockUploadService) {
				m.getPhotoFn = func(ctx context.Context, photoID uuid.UUID) (*usecase.PhotoOutput, error) {
					return nil, repository.ErrPhotoNotFound
				}
			},
			wantStatusCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockUploadService{}
			tt.setupMock(mock)
			h := NewPhotoHandler(mock, 0)

			rec := serve(h, http.MethodGet, "/v1/photos/"+tt.photoID, nil)

			if rec.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d", tt.wantStatusCode, rec.Code)
			}

			if tt.checkResponse != nil {
				tt.checkResponse(t, rec.Body.Bytes())
			}
		})
	}
}

func TestPhotoHandler_List(t *testing.T) {
	albumID := uuid.New()
	mock := &mockUploadService{
		listPhotosFn: func(ctx context.Context, id uuid.UUID) ([]*model.Photo, error) {
			if id != albumID {
				t.Errorf("unexpected album ID %s", id)
			}
			return []*model.Photo{samplePhoto(model.StatusReady), samplePhoto(model.StatusProcessing)}, nil
		},
	}

	rec := serve(NewPhotoHandler(mock, 0), http.MethodGet, "/v1/albums/"+albumID.String()+"/photos", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp PhotoListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.Photos) != 2 {
		t.Errorf("expected 2 photos, got %d", len(resp.Photos))
	}
}

func TestListPresets(t *testing.T) {
	rec := serve(NewPhotoHandler(&mockUploadService{}, 0), http.MethodGet, "/v1/presets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp PresetsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.Presets) == 0 || resp.Presets[0] != "none" {
		t.Errorf("expected presets to start with none, got %v", resp.Presets)
	}
}
