package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/Brownie44l1/vision-api/internal/model"
)

const uploadField = "file"

type visionService interface {
	Classify(ctx context.Context, upload []byte) (*model.PredictionResponse, error)
	Caption(ctx context.Context, upload []byte) (*model.CaptionResponse, error)
	Discovery() *model.DiscoveryResponse
}

type Handler struct {
	service        visionService
	maxUploadBytes int64
	logger         *log.Logger
}

func NewHandler(logger *log.Logger, service visionService, maxUploadBytes int64) *Handler {
	return &Handler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Index godoc
// @Summary API info
// @Description Static list of the available operations.
// @Tags meta
// @Produce json
// @Success 200 {object} model.DiscoveryResponse
// @Router / [get]
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Discovery())
}

// Health godoc
// @Summary Health check
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Predict godoc
// @Summary Classify an image
// @Description Top-5 ImageNet labels with confidence in percent (ResNet18).
// @Tags inference
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Image file (JPEG, PNG, GIF)"
// @Success 200 {object} model.PredictionResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /predict [post]
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	upload, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Error processing image: %s", err))
		return
	}

	result, err := h.service.Classify(r.Context(), upload)
	if err != nil {
		if model.IsClientError(err) {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Error processing image: %s", err))
			return
		}
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error during prediction: %s", err))
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// Caption godoc
// @Summary Caption an image
// @Description Unconditioned caption and a caption conditioned on "a photography of" (BLIP).
// @Tags inference
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Image file (JPEG, PNG, GIF)"
// @Success 200 {object} model.CaptionResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /caption [post]
func (h *Handler) Caption(w http.ResponseWriter, r *http.Request) {
	upload, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Error processing image: %s", err))
		return
	}

	result, err := h.service.Caption(r.Context(), upload)
	if err != nil {
		if model.IsClientError(err) {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Error processing image: %s", err))
			return
		}
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error generating caption: %s", err))
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// readUpload returns the bytes of the single uploaded file.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: upload exceeds %d bytes", model.ErrInvalidImage, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: failed to parse form: %v", model.ErrInvalidImage, err)
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return nil, fmt.Errorf("%w: no image file provided, use %q as the form field name", model.ErrInvalidImage, uploadField)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read upload: %v", model.ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: uploaded file %q is empty", model.ErrInvalidImage, header.Filename)
	}

	return data, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := sonic.Marshal(body)
	if err != nil {
		h.logger.Printf("failed to encode response: %v\n", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		h.logger.Printf("failed to write response: %v\n", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, model.ErrorResponse{Detail: detail})
}
