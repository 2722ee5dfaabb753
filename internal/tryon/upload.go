package tryon

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/model"
)

// PhotoUploader sends one photo to the backend. *backend.Client satisfies it.
type PhotoUploader interface {
	Upload(ctx context.Context, kind model.Kind, cred model.Credential, filename string, data []byte) (model.PhotoRef, error)
}

// Submitter uploads photos. Refreshing the inventory afterwards is the
// controller's job.
type Submitter struct {
	uploader PhotoUploader
}

func NewSubmitter(uploader PhotoUploader) *Submitter {
	return &Submitter{uploader: uploader}
}

// Check rejects uploads that cannot succeed before any request is made.
func (s *Submitter) Check(filename string, data []byte) error {
	name := strings.TrimSpace(filepath.Base(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return apperror.ValidationFailed("file", "Please choose a file to upload.")
	}
	if len(data) == 0 {
		return apperror.ValidationFailed("file", "The selected file is empty.")
	}
	return nil
}

// Upload checks and sends the file. Backend errors keep their detail so the
// user sees exactly what the backend said.
func (s *Submitter) Upload(ctx context.Context, kind model.Kind, filename string, data []byte, cred model.Credential) (model.PhotoRef, error) {
	if !cred.Present() {
		return model.PhotoRef{}, apperror.LoginRequired()
	}
	if err := s.Check(filename, data); err != nil {
		return model.PhotoRef{}, err
	}
	ref, err := s.uploader.Upload(ctx, kind, cred, filename, data)
	if err != nil {
		return model.PhotoRef{}, fmt.Errorf("tryon: upload %s photo: %w", kind, err)
	}
	return ref, nil
}
