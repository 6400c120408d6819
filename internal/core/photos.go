package core

import (
	"context"
	"fmt"
	"io"
	"time"
)

// UploadPhoto stores a student's photo and records its key on the student.
func (s *Service) UploadPhoto(ctx context.Context, studentID, filename string, r io.Reader) (Student, error) {
	if s.photos == nil {
		return Student{}, fmt.Errorf("photos: %w", ErrFeatureDisabled)
	}
	if _, ok := s.store.GetStudent(studentID); !ok {
		return Student{}, fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}
	started := time.Now()
	key, err := s.photos.Upload(ctx, studentID, filename, r)
	s.observe(ctx, "photo.upload", started, err)
	if err != nil {
		return Student{}, err
	}
	st, _, err := s.UpdateStudent(ctx, studentID, func(st *Student) error {
		st.PhotoKey = key
		return nil
	})
	return st, err
}

// PhotoURL returns a short-lived link to the student's photo.
func (s *Service) PhotoURL(ctx context.Context, studentID string) (string, error) {
	if s.photos == nil {
		return "", fmt.Errorf("photos: %w", ErrFeatureDisabled)
	}
	st, ok := s.store.GetStudent(studentID)
	if !ok {
		return "", fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}
	if st.PhotoKey == "" {
		return "", fmt.Errorf("student %s photo: %w", studentID, ErrNotFound)
	}
	return s.photos.Link(ctx, st.PhotoKey)
}
