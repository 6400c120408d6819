package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

const (
	photoPrefix      = "students/"
	defaultPhotoExt  = ".jpg"
	photoLinkExpiry  = 15 * time.Minute
	maxPhotoBytes    = 5 << 20
	photoContentType = "image/jpeg"
	jpegQuality      = 82
)

// ErrInvalidImage is returned when compression is enabled and the upload is
// not a decodable image.
var ErrInvalidImage = errors.New("not a supported image")

// PhotoKey returns the object key for a student's photo. The extension is
// taken from filename and defaults to .jpg.
func PhotoKey(studentID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || len(ext) > 5 {
		ext = defaultPhotoExt
	}
	return photoPrefix + studentID + "/photo" + ext
}

// Photos stores student profile photos on top of any Store.
type Photos struct {
	store   Store
	maxSide int
}

// PhotoOption configures Photos.
type PhotoOption func(*Photos)

// WithMaxSide re-encodes every upload as JPEG no larger than px on its
// longest side. Zero keeps uploads byte for byte.
func WithMaxSide(px int) PhotoOption {
	return func(p *Photos) { p.maxSide = px }
}

// NewPhotos wraps store.
func NewPhotos(store Store, opts ...PhotoOption) *Photos {
	p := &Photos{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Upload stores (or replaces) the photo for studentID and returns its key.
// Any previous photo under a different extension is removed.
func (p *Photos) Upload(ctx context.Context, studentID, filename string, r io.Reader) (string, error) {
	if studentID == "" {
		return "", fmt.Errorf("student id required")
	}
	var limited io.Reader = &io.LimitedReader{R: r, N: maxPhotoBytes + 1}
	if p.maxSide > 0 {
		compressed, err := compress(limited, p.maxSide)
		if err != nil {
			return "", err
		}
		limited, filename = compressed, defaultPhotoExt
	}
	key := PhotoKey(studentID, filename)
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = photoContentType
	}
	info, err := p.store.Put(ctx, key, limited, PutOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("store photo: %w", err)
	}
	if info.Size > maxPhotoBytes {
		_, _ = p.store.Delete(ctx, key)
		return "", fmt.Errorf("photo exceeds %d bytes", maxPhotoBytes)
	}
	existing, err := p.store.List(ctx, photoPrefix+studentID+"/")
	if err != nil {
		return key, nil
	}
	for _, old := range existing {
		if old.Key != key {
			_, _ = p.store.Delete(ctx, old.Key)
		}
	}
	return key, nil
}

// compress decodes r, shrinks it to fit maxSide and encodes it as JPEG.
func compress(r io.Reader, maxSide int) (io.Reader, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	b := img.Bounds()
	if b.Dx() > maxSide || b.Dy() > maxSide {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode photo: %w", err)
	}
	return &buf, nil
}

// Open returns the photo content.
func (p *Photos) Open(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	return p.store.Get(ctx, key)
}

// Link returns a short-lived URL for the photo.
func (p *Photos) Link(ctx context.Context, key string) (string, error) {
	return p.store.URL(ctx, key, photoLinkExpiry)
}

// Remove deletes every photo of a student.
func (p *Photos) Remove(ctx context.Context, studentID string) error {
	infos, err := p.store.List(ctx, photoPrefix+studentID+"/")
	if err != nil {
		return err
	}
	for _, info := range infos {
		if _, err := p.store.Delete(ctx, info.Key); err != nil {
			return err
		}
	}
	return nil
}
