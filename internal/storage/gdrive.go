package storage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// GDriveConfig configures a gdriveBackend. RootFolderID scopes every
// upload under a single shared folder, matching the original's
// "playrun_addict.xml lives in one known Drive folder" assumption.
type GDriveConfig struct {
	RootFolderID string
	AccessToken  string // when set, used instead of the default credential chain
}

// gdriveBackend implements remoteBackend against the Google Drive API.
// Adapted from the teacher's internal/storage/GDrive, trimmed to upload
// and existence-probe since RemoteStorage only ever moves a staged local
// file to its final home.
type gdriveBackend struct {
	drive    *drive.Service
	folderID string
}

func newGDriveBackend(ctx context.Context, cfg GDriveConfig) (*gdriveBackend, error) {
	var opt option.ClientOption
	if cfg.AccessToken != "" {
		opt = option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.AccessToken,
			TokenType:   "Bearer",
		}))
	} else {
		creds, err := google.FindDefaultCredentials(ctx, drive.DriveFileScope)
		if err != nil {
			return nil, fmt.Errorf("find default credentials: %w", err)
		}
		opt = option.WithCredentials(creds)
	}

	service, err := drive.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &gdriveBackend{drive: service, folderID: cfg.RootFolderID}, nil
}

func (b *gdriveBackend) upload(ctx context.Context, localPath, name string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	meta := &drive.File{Name: name}
	if b.folderID != "" {
		meta.Parents = []string{b.folderID}
	}

	existingID, err := b.findByName(ctx, name)
	if err != nil {
		return err
	}

	if existingID != "" {
		_, err = b.drive.Files.Update(existingID, &drive.File{}).Media(file).Context(ctx).Do()
	} else {
		_, err = b.drive.Files.Create(meta).Media(file).Context(ctx).Do()
	}
	return err
}

func (b *gdriveBackend) exists(ctx context.Context, name string) (bool, error) {
	id, err := b.findByName(ctx, name)
	if err != nil {
		return false, err
	}
	return id != "", nil
}

func (b *gdriveBackend) findByName(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeDriveQueryLiteral(name))
	if b.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", b.folderID)
	}
	result, err := b.drive.Files.List().Q(q).Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("list drive files: %w", err)
	}
	if len(result.Files) == 0 {
		return "", nil
	}
	return result.Files[0].Id, nil
}

func (b *gdriveBackend) probe(ctx context.Context) error {
	_, err := b.drive.About.Get().Fields("user").Context(ctx).Do()
	return err
}

// escapeDriveQueryLiteral escapes single quotes for Drive's query language.
func escapeDriveQueryLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
