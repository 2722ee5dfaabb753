package model

// ResultRef is the filename of one generated composite image.
type ResultRef string

// URL returns the path the result image is served from.
func (r ResultRef) URL() string {
	return "/images/results/" + string(r)
}

// GenerationRequest is the body of POST /tryon. It is only valid when both
// selections exist and the identity is known. The controller builds it.
type GenerationRequest struct {
	UserID        int64 `json:"user_id"`
	PersonPhotoID int64 `json:"person_photo_id"`
	ClothPhotoID  int64 `json:"cloth_photo_id"`
}

// GenerationResponse is the success body of POST /tryon. The backend also
// sends a message and result_url; only the filename is authoritative.
type GenerationResponse struct {
	ResultID       int64  `json:"result_id,omitempty"`
	ResultFilename string `json:"result_filename"`
	ResultURL      string `json:"result_url,omitempty"`
}
