package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveStore mirrors compiled artifacts to a Google Drive folder. It is an
// optional remote copy: the local artifact stays authoritative and local-only
// operation is a supported degradation.
type DriveStore struct {
	service    *drive.Service
	folderName string
	folderID   string
}

// NewDriveStore creates a Drive-backed remote store.
func NewDriveStore(credentialsFile, tokenFile, folderName string) (*DriveStore, error) {
	ctx := context.Background()

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	client, err := getClient(config, tokenFile)
	if err != nil {
		return nil, err
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	ds := &DriveStore{
		service:    srv,
		folderName: folderName,
	}
	if err := ds.ensureFolder(); err != nil {
		return nil, err
	}
	return ds, nil
}

// getClient builds an HTTP client from a cached token.
func getClient(config *oauth2.Config, tokenFile string) (*http.Client, error) {
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("no cached oauth token at %s (run the authorization flow first): %w", tokenFile, err)
	}
	return config.Client(context.Background(), tok), nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// ensureFolder finds or creates the root folder
func (ds *DriveStore) ensureFolder() error {
	query := fmt.Sprintf("name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false",
		ds.folderName)

	r, err := ds.service.Files.List().Q(query).Spaces("drive").Fields("files(id, name)").Do()
	if err != nil {
		return fmt.Errorf("unable to search for folder: %w", err)
	}

	if len(r.Files) > 0 {
		ds.folderID = r.Files[0].Id
		return nil
	}

	folder := &drive.File{
		Name:     ds.folderName,
		MimeType: "application/vnd.google-apps.folder",
	}

	file, err := ds.service.Files.Create(folder).Fields("id").Do()
	if err != nil {
		return fmt.Errorf("unable to create folder: %w", err)
	}

	ds.folderID = file.Id
	return nil
}

// Upload copies the session's compiled artifact into a per-session Drive
// folder and returns a shareable link.
func (ds *DriveStore) Upload(ctx context.Context, sessionID, artifactPath string) (string, error) {
	sessionFolderID, err := ds.findOrCreateFolder(sessionID, ds.folderID)
	if err != nil {
		return "", err
	}

	f, err := os.Open(artifactPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	meta := &drive.File{
		Name:    ArtifactName,
		Parents: []string{sessionFolderID},
	}

	created, err := ds.service.Files.Create(meta).Media(f).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact: %w", err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

// findOrCreateFolder finds or creates a folder with the given parent
func (ds *DriveStore) findOrCreateFolder(name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and '%s' in parents and mimeType='application/vnd.google-apps.folder' and trashed=false",
		name, parentID)

	r, err := ds.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Do()
	if err != nil {
		return "", err
	}

	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
		Parents:  []string{parentID},
	}

	file, err := ds.service.Files.Create(folder).Fields("id").Do()
	if err != nil {
		return "", err
	}

	return file.Id, nil
}
