package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/model"
)

// FetchIdentity resolves the profile behind a credential.
//
// HTTP: GET /users/me
func (c *Client) FetchIdentity(ctx context.Context, cred model.Credential) (*model.Identity, error) {
	if err := requireCredential(cred); err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/users/me", nil)
	if err != nil {
		return nil, err
	}

	var id model.Identity
	if _, err := c.do(c.bearer(cred), req, "fetch identity", &id); err != nil {
		return nil, fmt.Errorf("backend: fetch identity: %w", err)
	}
	return &id, nil
}

// ListPhotos returns the user's photos of one kind in backend order.
//
// HTTP: GET /images/persons or GET /images/my-clothes
//
// The backend answers 404 when it has no list at all for the user; that is
// the same as owning no photos, so it becomes an empty inventory.
func (c *Client) ListPhotos(ctx context.Context, kind model.Kind, cred model.Credential) (model.Inventory, error) {
	if err := requireCredential(cred); err != nil {
		return model.Inventory{}, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, kind.ListPath(), nil)
	if err != nil {
		return nil, err
	}

	var photos []model.PhotoRef
	if _, err := c.do(c.bearer(cred), req, "list "+kind.Noun()+" photos", &photos); err != nil {
		if statusOf(err) == http.StatusNotFound {
			return model.Inventory{}, nil
		}
		return nil, fmt.Errorf("backend: list %s photos: %w", kind, err)
	}
	if photos == nil {
		photos = []model.PhotoRef{}
	}
	return model.Inventory(photos), nil
}

// ShopClothes returns the public garment feed. No credential is needed.
//
// HTTP: GET /images/shop-clothes
func (c *Client) ShopClothes(ctx context.Context) ([]model.PhotoRef, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/images/shop-clothes", nil)
	if err != nil {
		return nil, err
	}

	var photos []model.PhotoRef
	if _, err := c.do(c.http, req, "list shop clothes", &photos); err != nil {
		return nil, fmt.Errorf("backend: list shop clothes: %w", err)
	}
	if photos == nil {
		photos = []model.PhotoRef{}
	}
	return photos, nil
}

// Upload sends one photo file as multipart field "file".
//
// HTTP: POST /upload/person or POST /upload/cloth
func (c *Client) Upload(ctx context.Context, kind model.Kind, cred model.Credential, filename string, data []byte) (model.PhotoRef, error) {
	if err := requireCredential(cred); err != nil {
		return model.PhotoRef{}, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	header.Set("Content-Type", http.DetectContentType(data))

	part, err := mw.CreatePart(header)
	if err != nil {
		return model.PhotoRef{}, fmt.Errorf("backend: building upload body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return model.PhotoRef{}, fmt.Errorf("backend: building upload body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return model.PhotoRef{}, fmt.Errorf("backend: building upload body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, kind.UploadPath(), &body)
	if err != nil {
		return model.PhotoRef{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var photo model.PhotoRef
	if _, err := c.do(c.bearer(cred), req, "upload "+kind.Noun()+" photo", &photo); err != nil {
		return model.PhotoRef{}, fmt.Errorf("backend: upload %s photo: %w", kind, err)
	}
	return photo, nil
}

// TryOn asks the backend to synthesize the pair and returns the result filename.
//
// HTTP: POST /tryon
//
// A 5xx here means the generation engine itself failed (the transport
// worked), so it is reported as ErrGeneration rather than a validation error.
func (c *Client) TryOn(ctx context.Context, cred model.Credential, gr model.GenerationRequest) (model.ResultRef, error) {
	if err := requireCredential(cred); err != nil {
		return "", err
	}

	body, err := jsonBody(gr)
	if err != nil {
		return "", fmt.Errorf("backend: encoding try-on request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/tryon", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out model.GenerationResponse
	if _, err := c.do(c.bearer(cred), req, "generate try-on", &out); err != nil {
		if status := statusOf(err); status >= 500 && !errors.Is(err, apperror.ErrUnauthorized) {
			return "", fmt.Errorf("backend: generate try-on: %w", apperror.GenerationFailed(apperror.Message(err)))
		}
		return "", fmt.Errorf("backend: generate try-on: %w", err)
	}
	if out.ResultFilename == "" {
		return "", fmt.Errorf("backend: generate try-on: %w",
			apperror.GenerationFailed("Failed to generate try-on image."))
	}
	return model.ResultRef(out.ResultFilename), nil
}
