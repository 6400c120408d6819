package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"academycore/internal/blob/core"
)

func TestStorePhotoLifecycle(t *testing.T) {
	store, _ := newFakeStore(t)
	ctx := context.Background()
	key := "students/s1/photo.jpg"

	info, err := store.Put(ctx, key, bytes.NewReader([]byte("jpeg-bytes")), core.PutOptions{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != key || info.ContentType != "image/jpeg" || info.Size != 10 || info.ETag != "etag123" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, key, bytes.NewReader([]byte("newer")), core.PutOptions{ContentType: "image/jpeg"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "newer" {
		t.Fatalf("expected overwritten content, got %q", data)
	}
	link, err := store.URL(ctx, key, time.Minute)
	if err != nil || !strings.Contains(link, "X-Amz-Signature") || !strings.Contains(link, "photos/students/s1/photo.jpg") {
		t.Fatalf("presign: %v %s", err, link)
	}
	if ok, err := store.Delete(ctx, key); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, key); err != nil || ok {
		t.Fatalf("second delete should report missing: %v %v", ok, err)
	}
}

func TestStoreGetMissingIsNotFound(t *testing.T) {
	store, _ := newFakeStore(t)
	if _, _, err := store.Get(context.Background(), "students/none/photo.jpg"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreListPaginates(t *testing.T) {
	store, bucket := newFakeStore(t)
	ctx := context.Background()
	for _, k := range []string{"students/b/photo.png", "students/a/photo.jpg", "other/x"} {
		if _, err := store.Put(ctx, k, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	infos, err := store.List(ctx, "students/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "students/a/photo.jpg" || infos[1].Key != "students/b/photo.png" {
		t.Fatalf("unexpected listing %+v", infos)
	}
	gets := 0
	for _, m := range bucket.requests {
		if m == "GET" {
			gets++
		}
	}
	if gets != 2 {
		t.Fatalf("expected two list pages, got %d", gets)
	}
	if infos, err := store.List(ctx, "none/"); err != nil || len(infos) != 0 {
		t.Fatalf("expected empty listing: %v %+v", err, infos)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
	s, err := New(context.Background(), Config{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Driver() != core.DriverS3 || s.Bucket() != "b" {
		t.Fatalf("unexpected store %+v", s)
	}
}

func TestObjectInfoTrimsETag(t *testing.T) {
	etag := "\"abc\""
	info := objectInfo("k", 3, nil, &etag, nil)
	if info.ETag != "abc" || info.ContentType != "" || !info.LastModified.IsZero() {
		t.Fatalf("unexpected info %+v", info)
	}
}
