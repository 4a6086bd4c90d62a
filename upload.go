package xpost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// uploadChunkSize is the fixed APPEND chunk size.
const uploadChunkSize = 5 * 1024 * 1024

// uploader drives the media upload protocol. Each call owns one ephemeral
// upload session; sessions are never shared or reused across calls.
type uploader struct {
	exec         *executor
	pollInterval time.Duration
}

// Upload pushes one attachment and returns the server-assigned media id
// usable as an attachment reference in a subsequent creation call. Videos
// and animated GIFs go through the chunked protocol; images are single-shot.
// The processing poll loop runs until the server reports a terminal state or
// ctx is done, so callers should bound ctx with a deadline.
func (u *uploader) Upload(ctx context.Context, m MediaAttachment) (string, error) {
	category := mediaCategory(m.ContentType)

	var mediaID string
	var err error
	if category == "tweet_image" {
		mediaID, err = u.uploadImage(ctx, m)
	} else {
		mediaID, err = u.uploadChunked(ctx, m, category)
	}
	if err != nil {
		return "", err
	}

	if m.AltText != "" {
		if err := u.setAltText(ctx, mediaID, m.AltText); err != nil {
			return "", err
		}
	}
	return mediaID, nil
}

func mediaCategory(contentType string) string {
	switch {
	case contentType == "image/gif":
		return "tweet_gif"
	case strings.HasPrefix(contentType, "video/"):
		return "tweet_video"
	default:
		return "tweet_image"
	}
}

// uploadImage is the single-request variant: one multipart POST with the
// binary payload.
func (u *uploader) uploadImage(ctx context.Context, m MediaAttachment) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("media", "media")
	if err == nil {
		_, err = part.Write(m.Data)
	}
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		return "", &UploadError{Phase: phaseImage, Err: err}
	}

	body, err := u.exec.doRaw(ctx, http.MethodPost,
		uploadEndpoint+"?media_category=tweet_image", w.FormDataContentType(), &buf, nil)
	if err != nil {
		return "", &UploadError{Phase: phaseImage, Err: err}
	}
	id, err := mediaIDFrom(body)
	if err != nil {
		return "", &UploadError{Phase: phaseImage, Err: err}
	}
	return id, nil
}

// uploadChunked is the four-phase variant: INIT, APPEND, FINALIZE, STATUS.
// Any phase failure abandons the rest with no partial-state cleanup.
func (u *uploader) uploadChunked(ctx context.Context, m MediaAttachment, category string) (string, error) {
	mediaID, err := u.initUpload(ctx, m, category)
	if err != nil {
		return "", err
	}

	// APPEND chunks must be issued strictly sequentially: segment indices
	// are zero-based, contiguous, and monotonic or FINALIZE is rejected.
	for segment, offset := 0, 0; offset < len(m.Data); segment, offset = segment+1, offset+uploadChunkSize {
		end := min(offset+uploadChunkSize, len(m.Data))
		if err := u.appendChunk(ctx, mediaID, segment, m.Data[offset:end]); err != nil {
			return "", err
		}
	}

	if err := u.finalize(ctx, mediaID); err != nil {
		return "", err
	}
	if err := u.awaitProcessing(ctx, mediaID); err != nil {
		return "", err
	}
	return mediaID, nil
}

func (u *uploader) initUpload(ctx context.Context, m MediaAttachment, category string) (string, error) {
	form := url.Values{
		"command":        {"INIT"},
		"total_bytes":    {strconv.Itoa(len(m.Data))},
		"media_type":     {m.ContentType},
		"media_category": {category},
	}
	body, err := u.exec.doForm(ctx, uploadEndpoint, form, nil)
	if err != nil {
		return "", &UploadError{Phase: phaseInit, Err: err}
	}
	id, err := mediaIDFrom(body)
	if err != nil {
		return "", &UploadError{Phase: phaseInit, Err: err}
	}
	return id, nil
}

func (u *uploader) appendChunk(ctx context.Context, mediaID string, segment int, chunk []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	err := w.WriteField("command", "APPEND")
	if err == nil {
		err = w.WriteField("media_id", mediaID)
	}
	if err == nil {
		err = w.WriteField("segment_index", strconv.Itoa(segment))
	}
	if err == nil {
		var part io.Writer
		part, err = w.CreateFormFile("media", "blob")
		if err == nil {
			_, err = part.Write(chunk)
		}
	}
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		return &UploadError{Phase: phaseAppend, Err: err}
	}

	if _, err := u.exec.doRaw(ctx, http.MethodPost, uploadEndpoint, w.FormDataContentType(), &buf, nil); err != nil {
		return &UploadError{Phase: phaseAppend, Err: fmt.Errorf("segment %d: %w", segment, err)}
	}
	return nil
}

func (u *uploader) finalize(ctx context.Context, mediaID string) error {
	form := url.Values{
		"command":  {"FINALIZE"},
		"media_id": {mediaID},
	}
	if _, err := u.exec.doForm(ctx, uploadEndpoint, form, nil); err != nil {
		return &UploadError{Phase: phaseFinalize, Err: err}
	}
	return nil
}

// awaitProcessing polls the STATUS endpoint until the server-side transcode
// reaches a terminal state. A response with no processing-state field means
// the media is already usable. The loop itself has no attempt cap; ctx
// carries the caller's deadline.
func (u *uploader) awaitProcessing(ctx context.Context, mediaID string) error {
	params := url.Values{
		"command":  {"STATUS"},
		"media_id": {mediaID},
	}
	for {
		body, err := u.exec.do(ctx, http.MethodGet, uploadEndpoint, params, nil, nil)
		if err != nil {
			return &UploadError{Phase: phaseStatus, Err: err}
		}

		var resp struct {
			ProcessingInfo *struct {
				State string `json:"state"`
				Error *struct {
					Name    string `json:"name"`
					Message string `json:"message"`
				} `json:"error"`
			} `json:"processing_info"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return &UploadError{Phase: phaseStatus, Err: err}
		}
		if resp.ProcessingInfo == nil || resp.ProcessingInfo.State == "succeeded" {
			return nil
		}
		if resp.ProcessingInfo.State == "failed" {
			reason := "processing failed"
			if e := resp.ProcessingInfo.Error; e != nil && e.Message != "" {
				reason = e.Message
			}
			return &UploadError{Phase: phaseStatus, Err: fmt.Errorf("media %s: %s", mediaID, reason)}
		}

		select {
		case <-ctx.Done():
			return &UploadError{Phase: phaseStatus, Err: ctx.Err()}
		case <-time.After(u.pollInterval):
		}
	}
}

// setAltText attaches alt text to an uploaded image.
func (u *uploader) setAltText(ctx context.Context, mediaID, alt string) error {
	payload := map[string]any{
		"media_id": mediaID,
		"alt_text": map[string]string{"text": alt},
	}
	if _, err := u.exec.do(ctx, http.MethodPost, mediaMetadataEndpoint, nil, payload, nil); err != nil {
		return &UploadError{Phase: phaseMetadata, Err: err}
	}
	return nil
}

// mediaIDFrom extracts the server-assigned media id from an upload response.
func mediaIDFrom(body []byte) (string, error) {
	var resp struct {
		MediaIDString string      `json:"media_id_string"`
		MediaID       json.Number `json:"media_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if resp.MediaIDString != "" {
		return resp.MediaIDString, nil
	}
	if resp.MediaID.String() != "" && resp.MediaID.String() != "0" {
		return resp.MediaID.String(), nil
	}
	return "", fmt.Errorf("no media id in upload response: %s", truncateBytes(body, 200))
}
