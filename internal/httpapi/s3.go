package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vitality-ai/warpdrive/internal/apierr"
	"github.com/vitality-ai/warpdrive/internal/logger"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

// s3Handlers implements the S3-compatible subset in spec.md §6.
type s3Handlers struct {
	app *App
}

// Object dispatches every method on /{bucket}/{key} (+ query) to the
// right multipart/copy/plain-object operation, since chi routes all of
// them through a single path pattern distinguished by query parameters.
func (h *s3Handlers) Object(w http.ResponseWriter, r *http.Request) {
	t, err := s3Tenant(r, &h.app.Config.S3)
	if err != nil {
		writeError(w, r, err)
		return
	}
	key := s3Key(r.URL.Path)
	if key == "" {
		writeError(w, r, apierr.Wrap(apierr.ErrBadRequest, "missing object key"))
		return
	}
	logger.EnrichContext(r.Context(), t.UserID, t.Bucket, key)

	q := r.URL.Query()
	switch r.Method {
	case http.MethodPut:
		switch {
		case q.Has("partNumber") && q.Has("uploadId"):
			h.uploadPart(w, r, t, key, q)
		case r.Header.Get("x-amz-copy-source") != "":
			h.copyObject(w, r, t, key)
		default:
			h.putObject(w, r, t, key)
		}
	case http.MethodGet:
		h.getObject(w, r, t, key)
	case http.MethodHead:
		h.headObject(w, r, t, key)
	case http.MethodDelete:
		switch {
		case q.Has("uploadId"):
			h.abortMultipart(w, r, t, key, q.Get("uploadId"))
		default:
			h.deleteObject(w, r, t, key)
		}
	case http.MethodPost:
		switch {
		case q.Has("uploads"):
			h.createMultipart(w, r, t, key)
		case q.Has("uploadId"):
			h.completeMultipart(w, r, t, key, q.Get("uploadId"))
		default:
			writeError(w, r, apierr.Wrap(apierr.ErrBadRequest, "unrecognized POST query"))
		}
	default:
		writeError(w, r, apierr.Wrap(apierr.ErrBadRequest, "unsupported method"))
	}
}

func (h *s3Handlers) putObject(w http.ResponseWriter, r *http.Request, t tenant.Context, key string) {
	data, err := readBody(w, r, h.app.Config.HTTP.MaxS3Payload.Int64())
	if err != nil {
		writeError(w, r, err)
		return
	}
	etag, err := h.app.Pipeline.PutS3Object(r.Context(), t, key, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", quoteETag(etag))
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

func (h *s3Handlers) getObject(w http.ResponseWriter, r *http.Request, t tenant.Context, key string) {
	data, err := h.app.Pipeline.GetS3Object(r.Context(), t, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeBytes(w, data)
}

func (h *s3Handlers) headObject(w http.ResponseWriter, r *http.Request, t tenant.Context, key string) {
	info := h.app.Pipeline.HeadS3Object(r.Context(), t, key)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
}

func (h *s3Handlers) deleteObject(w http.ResponseWriter, r *http.Request, t tenant.Context, key string) {
	if err := h.app.Pipeline.DeleteS3Object(r.Context(), t, key); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *s3Handlers) copyObject(w http.ResponseWriter, r *http.Request, t tenant.Context, dstKey string) {
	source := strings.TrimPrefix(r.Header.Get("x-amz-copy-source"), "/")
	i := strings.IndexByte(source, '/')
	if i < 0 {
		writeError(w, r, apierr.Wrap(apierr.ErrBadRequest, "malformed x-amz-copy-source"))
		return
	}
	srcBucket, srcKey := source[:i], source[i+1:]
	srcTenant := tenant.New(t.UserID, srcBucket, t.Metadata)

	etag, err := h.app.Pipeline.CopyS3Object(r.Context(), t, srcTenant, srcKey, dstKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeXML(w, copyObjectResult{
		Xmlns:        s3Namespace,
		ETag:         quoteETag(etag),
		LastModified: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *s3Handlers) uploadPart(w http.ResponseWriter, r *http.Request, t tenant.Context, key string, q map[string][]string) {
	partNumber, err := strconv.Atoi(firstOr(q, "partNumber"))
	if err != nil {
		writeError(w, r, apierr.Wrap(apierr.ErrBadRequest, "invalid partNumber"))
		return
	}
	uploadID := firstOr(q, "uploadId")

	data, err := readBody(w, r, h.app.Config.HTTP.MaxS3Payload.Int64())
	if err != nil {
		writeError(w, r, err)
		return
	}
	etag, err := h.app.Pipeline.UploadPart(r.Context(), t, key, uploadID, partNumber, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", quoteETag(etag))
	w.WriteHeader(http.StatusOK)
}

func (h *s3Handlers) createMultipart(w http.ResponseWriter, r *http.Request, t tenant.Context, key string) {
	uploadID, err := h.app.Pipeline.CreateMultipartUpload(r.Context(), t, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeXML(w, initiateMultipartUploadResult{
		Xmlns:    s3Namespace,
		Bucket:   t.Bucket,
		Key:      key,
		UploadID: uploadID,
	})
}

func (h *s3Handlers) completeMultipart(w http.ResponseWriter, r *http.Request, t tenant.Context, key, uploadID string) {
	// The request body is a CompleteMultipartUpload part list; its
	// content is ignored per §6, the pipeline derives part order from
	// synthetic metadata keys instead.
	_, _ = readBody(w, r, h.app.Config.HTTP.MaxS3Payload.Int64())

	etag, err := h.app.Pipeline.CompleteMultipartUpload(r.Context(), t, key, uploadID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeXML(w, completeMultipartUploadResult{
		Xmlns:    s3Namespace,
		Location: r.URL.Path,
		Bucket:   t.Bucket,
		Key:      key,
		ETag:     quoteETag(etag),
	})
}

func (h *s3Handlers) abortMultipart(w http.ResponseWriter, r *http.Request, t tenant.Context, key, uploadID string) {
	if err := h.app.Pipeline.AbortMultipartUpload(r.Context(), t, key, uploadID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBucket handles GET /{bucket}?list-type=2.
func (h *s3Handlers) ListBucket(w http.ResponseWriter, r *http.Request) {
	t, err := s3Tenant(r, &h.app.Config.S3)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.EnrichContext(r.Context(), t.UserID, t.Bucket, "")
	prefix := r.URL.Query().Get("prefix")

	infos, err := h.app.Pipeline.ListS3Objects(r.Context(), t, prefix)
	if err != nil {
		writeError(w, r, err)
		return
	}

	contents := make([]listedObject, 0, len(infos))
	for _, info := range infos {
		contents = append(contents, listedObject{Key: info.Key, Size: info.Size})
	}
	writeXML(w, listBucketResult{
		Xmlns:       s3Namespace,
		Name:        t.Bucket,
		Prefix:      prefix,
		KeyCount:    len(contents),
		MaxKeys:     1000,
		IsTruncated: false,
		Contents:    contents,
	})
}

func quoteETag(etag string) string {
	return `"` + etag + `"`
}

func firstOr(q map[string][]string, key string) string {
	if v, ok := q[key]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}
