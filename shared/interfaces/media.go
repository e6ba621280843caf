package interfaces

import "context"

// UploadedMedia describes a file accepted by the media host.
type UploadedMedia struct {
	URL      string
	PublicID string
}

// MediaUploader uploads a local file to the remote media host.
// Implementations never delete the local file; the caller owns it.
type MediaUploader interface {
	Upload(ctx context.Context, localPath string) (*UploadedMedia, error)
}
