package service

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"time"

	"github.com/apex/log"

	"github.com/Abhinavsb985/Smart-Traffic-Control/image"
	"github.com/Abhinavsb985/Smart-Traffic-Control/metrics"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// TimestampedName builds an object key of the form "<unix millis>-<name>".
// Path components and unsafe characters are stripped from name.
func TimestampedName(now time.Time, name string) string {
	clean := unsafeNameChars.ReplaceAllString(filepath.Base(name), "-")
	if clean == "" || clean == "." || clean == "-" {
		clean = "image"
	}
	return fmt.Sprintf("%d-%s", now.UnixMilli(), clean)
}

// AssetUploader writes a single binary asset to the object store and returns
// the reference a report will carry.
type AssetUploader struct {
	objects   ObjectStore
	maxBytes  int
	normalize func([]byte) ([]byte, error)
}

// NewAssetUploader creates an uploader. Images are normalised with
// image.CompressImage before being stored; undecodable files are stored as sent.
func NewAssetUploader(objects ObjectStore, maxBytes int) *AssetUploader {
	return &AssetUploader{
		objects:   objects,
		maxBytes:  maxBytes,
		normalize: image.CompressImage,
	}
}

// Upload stores data under suggestedName and returns its public URL.
func (u *AssetUploader) Upload(ctx context.Context, data []byte, suggestedName string) (string, error) {
	if len(data) == 0 {
		return "", &UploadError{Key: suggestedName, Err: ErrEmptyAsset}
	}
	if u.maxBytes > 0 && len(data) > u.maxBytes {
		return "", &UploadError{Key: suggestedName, Err: fmt.Errorf("%w: %d bytes, limit %d", ErrAssetTooLarge, len(data), u.maxBytes)}
	}

	payload := data
	if u.normalize != nil {
		out, err := u.normalize(data)
		if err != nil {
			log.WithField("key", suggestedName).Warnf("Storing image as sent, normalisation failed: %v", err)
		} else {
			payload = out
		}
	}
	contentType := http.DetectContentType(payload)

	start := time.Now()
	url, err := u.objects.Put(ctx, suggestedName, payload, contentType)
	metrics.StageDurationSeconds.WithLabelValues("upload").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", &UploadError{Key: suggestedName, Err: err}
	}
	if url == "" {
		url = u.objects.PublicURLFor(suggestedName)
	}
	metrics.UploadBytes.Observe(float64(len(payload)))

	log.WithFields(log.Fields{
		"key":          suggestedName,
		"content_type": contentType,
		"bytes":        len(payload),
	}).Info("Asset uploaded")
	return url, nil
}
