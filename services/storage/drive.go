package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Drive загружает файлы в папку Google Drive от имени сервисного аккаунта
type Drive struct {
	files    *drive.FilesService
	folderID string
}

// NewDrive - клиент по JSON-ключу сервисного аккаунта (DRIVE_JSON)
func NewDrive(ctx context.Context, credentialsFile, folderID string) (*Drive, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account file: %v", err)
	}

	conf, err := google.JWTConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %v", err)
	}

	svc, err := drive.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %v", err)
	}
	return &Drive{files: svc.Files, folderID: folderID}, nil
}

func (d *Drive) Save(ctx context.Context, kind Kind, name string, r io.Reader) (Object, error) {
	meta := &drive.File{Name: name, Description: string(kind) + " upload"}
	if d.folderID != "" {
		meta.Parents = []string{d.folderID}
	}

	uploaded, err := d.files.Create(meta).
		Media(r).
		Fields("id", "webViewLink", "webContentLink", "size").
		Context(ctx).
		Do()
	if err != nil {
		return Object{}, fmt.Errorf("failed to upload file: %v", err)
	}

	url := uploaded.WebContentLink
	if url == "" {
		url = uploaded.WebViewLink
	}
	return Object{ID: uploaded.Id, URL: url, Size: uploaded.Size}, nil
}
