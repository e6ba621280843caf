// Package media uploads user images to Cloudinary.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"

	"account-server/shared/interfaces"
	"account-server/shared/models"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"
)

// Config holds Cloudinary credentials and the target folder.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

var _ interfaces.MediaUploader = (*CloudinaryUploader)(nil)

// CloudinaryUploader implements interfaces.MediaUploader.
type CloudinaryUploader struct {
	api    uploadAPI
	folder string
	logger *zap.Logger
}

// NewCloudinaryUploader creates an uploader from credentials.
func NewCloudinaryUploader(cfg Config, logger *zap.Logger) (*CloudinaryUploader, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("cloudinary cloud name, api key and api secret are required")
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudinary client: %w", err)
	}
	return newUploader(&cld.Upload, cfg.Folder, logger), nil
}

func newUploader(api uploadAPI, folder string, logger *zap.Logger) *CloudinaryUploader {
	return &CloudinaryUploader{
		api:    api,
		folder: folder,
		logger: logger.Named("CloudinaryUploader"),
	}
}

// Upload sends the file at localPath and returns its secure URL. The local file is left in place.
func (u *CloudinaryUploader) Upload(ctx context.Context, localPath string) (*interfaces.UploadedMedia, error) {
	if localPath == "" {
		return nil, models.ErrMediaMissing
	}
	if _, err := os.Stat(localPath); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrMediaMissing, err)
	}

	res, err := u.api.Upload(ctx, localPath, uploader.UploadParams{
		Folder:       u.folder,
		ResourceType: "auto",
	})
	if err != nil {
		u.logger.Error("Cloudinary upload failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", models.ErrMediaUpload, err)
	}
	if res == nil || res.Error.Message != "" || res.SecureURL == "" {
		msg := "empty response"
		if res != nil && res.Error.Message != "" {
			msg = res.Error.Message
		}
		u.logger.Error("Cloudinary rejected upload", zap.String("reason", msg))
		return nil, fmt.Errorf("%w: %s", models.ErrMediaUpload, msg)
	}

	u.logger.Debug("File uploaded", zap.String("publicID", res.PublicID))
	return &interfaces.UploadedMedia{URL: res.SecureURL, PublicID: res.PublicID}, nil
}
