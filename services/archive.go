package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Dosada05/pong-tournament/models"
	"github.com/Dosada05/pong-tournament/storage"
)

// BracketArchiver stores the final bracket of a tournament and returns its public URL.
type BracketArchiver interface {
	Archive(ctx context.Context, t *models.Tournament) (string, error)
}

type storageArchiver struct {
	uploader storage.FileUploader
}

func NewBracketArchiver(uploader storage.FileUploader) BracketArchiver {
	return &storageArchiver{uploader: uploader}
}

func bracketKey(tournamentID int) string {
	return fmt.Sprintf("brackets/tournament-%d.json", tournamentID)
}

func (a *storageArchiver) Archive(ctx context.Context, t *models.Tournament) (string, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to encode bracket of tournament %d: %w", t.ID, err)
	}
	res, err := a.uploader.Upload(ctx, bracketKey(t.ID), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	return res.Location, nil
}
