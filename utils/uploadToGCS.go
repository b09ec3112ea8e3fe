package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

var importMimeTypes = map[string]bool{
	"text/csv":                 true,
	"text/plain":               true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

// getGoogleClient initializes a Google Cloud Storage client
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC; GCS_CREDENTIALS_JSON is for local runs.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// ImportContentType resolves the stored content type of an uploaded import file.
func ImportContentType(fileName string, data []byte) (string, error) {
	mimeType := http.DetectContentType(data)
	switch strings.ToLower(path.Ext(fileName)) {
	case ".xlsx":
		// xlsx is a zip container
		if mimeType == "application/zip" || mimeType == "application/octet-stream" {
			mimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		}
	case ".csv":
		if strings.HasPrefix(mimeType, "text/plain") || mimeType == "application/octet-stream" {
			mimeType = "text/csv"
		}
	}
	mimeType = strings.TrimSpace(strings.Split(mimeType, ";")[0])
	if !importMimeTypes[mimeType] {
		return "", fmt.Errorf("unsupported file type: %s", mimeType)
	}
	return mimeType, nil
}

// UploadBytesToGCS writes data to objectName in GCS_BUCKET.
func UploadBytesToGCS(ctx context.Context, objectName string, data []byte, contentType string) error {
	if GetStorageProvider() != StorageProviderGCS {
		return fmt.Errorf("storage provider %q not supported", GetStorageProvider())
	}
	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return errors.New("GCS_BUCKET is required")
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to upload bytes to Google Cloud Storage: %v", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %v", err)
	}
	return nil
}
