package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/extractify-ai/extractify/internal/imaging"
)

var errNoUpload = errors.New("no image provided")

// HandleUpload accepts a multipart file or an image_url form field and makes
// it the session's selected image.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess := h.session(w, r)

	img, err := h.readImage(r.Context(), w, r)
	if err != nil {
		h.renderIntake(w, sess, err.Error(), statusFor(err))
		return
	}
	sess.SelectImage(img)
	slog.Info("Image selected", "session_id", sess.ID, "mime", img.MIMEType, "width", img.Width, "height", img.Height)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleCrop stores the crop described by the form, or the whole image when
// full is set.
func (h *Handler) HandleCrop(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess := h.session(w, r)

	var err error
	if r.FormValue("full") != "" {
		_, err = sess.CropFull()
	} else {
		_, err = sess.Crop(imaging.Region{
			X:      formInt(r, "x"),
			Y:      formInt(r, "y"),
			Width:  formInt(r, "width"),
			Height: formInt(r, "height"),
		})
	}
	if err != nil {
		h.renderIntake(w, sess, err.Error(), statusFor(err))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleAPIImage is the JSON counterpart of HandleUpload. A JSON body with
// image_url fetches the image; anything else is treated as a multipart upload.
func (h *Handler) HandleAPIImage(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess := h.session(w, r)

	var (
		img *imaging.Image
		err error
	)
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var request struct {
			ImageURL string `json:"image_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		if request.ImageURL == "" {
			h.writeError(w, "image_url is required", http.StatusBadRequest)
			return
		}
		img, err = h.fetcher.Fetch(r.Context(), request.ImageURL)
	} else {
		img, err = h.readImage(r.Context(), w, r)
	}
	if err != nil {
		h.writeError(w, "Failed to load image: "+err.Error(), statusFor(err))
		return
	}

	sess.SelectImage(img)
	h.writeJSON(w, http.StatusOK, sess.View(false))
}

// HandleAPICrop accepts {"x","y","width","height"} or {"full": true}.
func (h *Handler) HandleAPICrop(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess := h.session(w, r)

	var request struct {
		imaging.Region
		Full bool `json:"full"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	var (
		crop *imaging.Image
		err  error
	)
	if request.Full {
		crop, err = sess.CropFull()
	} else {
		crop, err = sess.Crop(request.Region)
	}
	if err != nil {
		h.writeError(w, err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"image_width":  crop.Width,
		"image_height": crop.Height,
		"data_url":     crop.DataURL(),
	})
}

// readImage pulls the image out of a multipart upload ("file" or "files") or
// an image_url form value.
func (h *Handler) readImage(ctx context.Context, w http.ResponseWriter, r *http.Request) (*imaging.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			file, _, err = r.FormFile("files")
		}
		if err == nil {
			defer file.Close()
			return imaging.Decode(file, h.maxUploadBytes)
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return nil, err
		}
	}

	if u := r.FormValue("image_url"); u != "" {
		return h.fetcher.Fetch(ctx, u)
	}
	return nil, errNoUpload
}

func formInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(r.FormValue(key)))
	return n
}
