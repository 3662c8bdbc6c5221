package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cvlm/internal/domain"
	"cvlm/internal/ownership"
	"cvlm/internal/ports"
)

// LetterLinkTTL 是求职信预签名下载链接的有效期。
const LetterLinkTTL = 15 * time.Minute

type LetterService struct {
	letters ports.LetterRepository
	files   ports.FileStore
	owner   *ownership.Validator
	now     func() time.Time
}

func NewLetterService(letters ports.LetterRepository, files ports.FileStore, owner *ownership.Validator) *LetterService {
	return &LetterService{letters: letters, files: files, owner: owner, now: time.Now}
}

func (s *LetterService) List(ctx context.Context, user domain.User) ([]domain.Letter, error) {
	letters, err := s.letters.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list letters: %w", err)
	}
	return letters, nil
}

// LetterFile 是一封求职信的文件流。
type LetterFile struct {
	Body     io.ReadCloser
	Filename string
	Size     int64
	Letter   *domain.Letter
}

// Download 校验归属与文件存在后打开 PDF，调用方负责关闭 Body。
func (s *LetterService) Download(ctx context.Context, user domain.User, letterID string) (*LetterFile, error) {
	letter, err := s.owner.Letter(ctx, letterID, user)
	if err != nil {
		return nil, err
	}
	body, err := s.files.Open(ctx, letter.FilePath)
	if err != nil {
		if errors.Is(err, ports.ErrObjectNotFound) {
			return nil, domain.NotFound("letter file")
		}
		return nil, fmt.Errorf("open letter file: %w", err)
	}
	return &LetterFile{
		Body:     body,
		Filename: downloadName(letter),
		Size:     letter.FileSize,
		Letter:   letter,
	}, nil
}

// Link 返回限时下载链接及其过期时间。
func (s *LetterService) Link(ctx context.Context, user domain.User, letterID string) (string, time.Time, error) {
	letter, err := s.owner.Letter(ctx, letterID, user)
	if err != nil {
		return "", time.Time{}, err
	}
	expires := s.now().Add(LetterLinkTTL)
	link, err := s.files.PresignedURL(ctx, letter.FilePath, LetterLinkTTL, downloadName(letter))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign letter: %w", err)
	}
	return link, expires, nil
}

func downloadName(letter *domain.Letter) string {
	if letter.Filename != "" {
		return letter.Filename
	}
	return domain.DownloadFilename(nil, nil)
}
