package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/vantage/internal/models"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const MaxMediaSize = 100 << 20

// MediaService puts uploaded files somewhere platforms can fetch them from.
type MediaService interface {
	Stage(ctx context.Context, orgID int64, filename string, data []byte) (*models.MediaItem, error)
}

type mediaService struct {
	store ObjectStore
}

func NewMediaService(store ObjectStore) MediaService {
	return &mediaService{store: store}
}

var documentExtensions = map[string]bool{"pdf": true, "doc": true, "docx": true, "xls": true, "xlsx": true, "ppt": true, "pptx": true}

func classifyMedia(kind types.Type) (models.MediaType, bool) {
	switch {
	case kind.Extension == "gif":
		return models.MediaTypeGIF, true
	case kind.MIME.Type == "image":
		return models.MediaTypeImage, true
	case kind.MIME.Type == "video":
		return models.MediaTypeVideo, true
	case documentExtensions[kind.Extension]:
		return models.MediaTypeDocument, true
	}
	return "", false
}

func (s *mediaService) Stage(ctx context.Context, orgID int64, filename string, data []byte) (*models.MediaItem, error) {
	if len(data) == 0 {
		return nil, badRequest("file is empty")
	}
	if len(data) > MaxMediaSize {
		return nil, badRequest(fmt.Sprintf("file exceeds %d MB", MaxMediaSize>>20))
	}
	if !s.store.Enabled() {
		return nil, ErrStorageDisabled
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return nil, badRequest("unsupported file type")
	}
	mediaType, ok := classifyMedia(kind)
	if !ok {
		return nil, badRequest(fmt.Sprintf("file type %s is not allowed", kind.Extension))
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("media/%d/%s.%s", orgID, id, kind.Extension)
	link, err := s.store.Put(ctx, key, data, kind.MIME.Value)
	if err != nil {
		return nil, fmt.Errorf("uploading media: %w", err)
	}

	slog.Info("media staged", "organization_id", orgID, "filename", filename, "key", key, "type", mediaType, "size", len(data))
	return &models.MediaItem{URL: link, Type: mediaType}, nil
}
