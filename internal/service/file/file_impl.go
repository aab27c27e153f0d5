package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-task-processor/internal/models"
	"github.com/feichai0017/pdf-task-processor/internal/repository"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
	"github.com/feichai0017/pdf-task-processor/pkg/storage"
)

const suffixLen = 6

type FileService struct {
	repo    repository.FileRepository
	storage storage.Storage
	logger  logger.Logger
	now     func() time.Time
}

func NewService(repo repository.FileRepository, store storage.Storage, log logger.Logger) *FileService {
	return &FileService{
		repo:    repo,
		storage: store,
		logger:  log.Named("file"),
		now:     time.Now,
	}
}

// StorageName builds a collision-free key: <unix-ms>-<6 random chars><ext>.
func StorageName(displayName string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix + strings.ToLower(filepath.Ext(displayName))
}

// Save 存储文件并创建元数据
func (s *FileService) Save(ctx context.Context, content io.Reader, displayName, contentType string) (*models.StoredFile, error) {
	blob, err := s.storeBlob(ctx, content, displayName, contentType)
	if err != nil {
		return nil, err
	}
	return s.createRecord(ctx, blob)
}

// storeBlob writes the bytes and returns the record to create for them.
func (s *FileService) storeBlob(ctx context.Context, content io.Reader, displayName, contentType string) (*models.StoredFile, error) {
	now := s.now()
	name := StorageName(displayName, now)

	counter := &countingReader{r: content}
	location, err := s.storage.Store(ctx, counter, name)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	return &models.StoredFile{
		StorageName: name,
		DisplayName: displayName,
		SizeBytes:   counter.n,
		ContentType: normalizeContentType(contentType),
		CreatedAt:   now.UTC(),
		Location:    location,
	}, nil
}

// createRecord assigns an id to a stored blob. The blob is removed when the
// record cannot be created.
func (s *FileService) createRecord(ctx context.Context, blob *models.StoredFile) (*models.StoredFile, error) {
	f, err := s.repo.Create(ctx, blob)
	if err != nil {
		s.removeBlob(ctx, blob.Location)
		return nil, fmt.Errorf("failed to save file metadata: %w", err)
	}

	s.logger.Info("File saved",
		logger.Int64("fileId", f.ID),
		logger.String("displayName", f.DisplayName),
		logger.Int64("size", f.SizeBytes),
	)
	return f, nil
}

func (s *FileService) removeBlob(ctx context.Context, location string) {
	if err := s.storage.Delete(context.WithoutCancel(ctx), location); err != nil {
		s.logger.Warn("Failed to remove orphaned blob",
			logger.String("location", location),
			logger.Error(err),
		)
	}
}

func (s *FileService) SaveBatch(ctx context.Context, headers []*multipart.FileHeader) ([]*models.StoredFile, error) {
	blobs := make([]*models.StoredFile, len(headers))

	g, gctx := errgroup.WithContext(ctx)
	for i, header := range headers {
		i, header := i, header
		g.Go(func() error {
			src, err := header.Open()
			if err != nil {
				return fmt.Errorf("failed to open file %s: %w", header.Filename, err)
			}
			defer src.Close()

			blob, err := s.storeBlob(gctx, src, header.Filename, header.Header.Get("Content-Type"))
			if err != nil {
				return fmt.Errorf("failed to save file %s: %w", header.Filename, err)
			}
			blobs[i] = blob
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, blob := range blobs {
			if blob != nil {
				s.removeBlob(ctx, blob.Location)
			}
		}
		return nil, err
	}

	// ids follow upload order
	saved := make([]*models.StoredFile, 0, len(blobs))
	for i, blob := range blobs {
		f, err := s.createRecord(ctx, blob)
		if err != nil {
			s.rollback(ctx, saved, blobs[i+1:])
			return nil, fmt.Errorf("failed to save file %s: %w", blob.DisplayName, err)
		}
		saved = append(saved, f)
	}
	return saved, nil
}

func (s *FileService) rollback(ctx context.Context, saved, pending []*models.StoredFile) {
	for _, f := range saved {
		if _, err := s.Delete(context.WithoutCancel(ctx), f.ID); err != nil {
			s.logger.Warn("Failed to roll back upload",
				logger.Int64("fileId", f.ID),
				logger.Error(err),
			)
		}
	}
	for _, blob := range pending {
		s.removeBlob(ctx, blob.Location)
	}
}

func (s *FileService) Get(ctx context.Context, id int64) (*models.StoredFile, error) {
	return s.repo.Get(ctx, id)
}

func (s *FileService) List(ctx context.Context) ([]*models.StoredFile, error) {
	return s.repo.List(ctx)
}

func (s *FileService) Delete(ctx context.Context, id int64) (bool, error) {
	f, err := s.repo.Delete(ctx, id)
	if errors.Is(err, models.ErrFileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.storage.Delete(ctx, f.Location); err != nil {
		// metadata is already gone; a missing or stuck blob is not the caller's problem
		s.logger.Warn("Failed to remove file bytes",
			logger.Int64("fileId", id),
			logger.String("location", f.Location),
			logger.Error(err),
		)
	}

	s.logger.Info("File deleted", logger.Int64("fileId", id))
	return true, nil
}

func (s *FileService) Open(ctx context.Context, id int64) (io.ReadCloser, *models.StoredFile, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Get(ctx, f.Location)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, fmt.Errorf("%w: bytes missing for file %d", models.ErrFileNotFound, id)
		}
		return nil, nil, err
	}
	return rc, f, nil
}

func (s *FileService) ReadAll(ctx context.Context, id int64) ([]byte, *models.StoredFile, error) {
	rc, f, err := s.Open(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if f.SizeBytes > 0 {
		buf.Grow(int(f.SizeBytes))
	}
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, nil, fmt.Errorf("failed to read file %d: %w", id, err)
	}
	return buf.Bytes(), f, nil
}

func (s *FileService) Acquire(ctx context.Context, ids []int64) error {
	return s.repo.Acquire(ctx, ids)
}

func (s *FileService) Release(ctx context.Context, ids []int64) error {
	return s.repo.Release(ctx, ids)
}

// Cleanup 清理过期文件
func (s *FileService) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	files, err := s.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list files: %w", err)
	}

	removed := 0
	for _, f := range files {
		if !f.CreatedAt.Before(olderThan) {
			continue
		}
		ok, err := s.Delete(ctx, f.ID)
		if errors.Is(err, models.ErrFileInUse) {
			continue
		}
		if err != nil {
			s.logger.Error("Failed to delete expired file",
				logger.Int64("fileId", f.ID),
				logger.Error(err),
			)
			continue
		}
		if ok {
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("Deleted expired files",
			logger.Int("count", removed),
			logger.Time("olderThan", olderThan),
		)
	}
	return removed, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// normalizeContentType drops MIME parameters such as charset.
func normalizeContentType(contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

var _ FileStore = (*FileService)(nil)
