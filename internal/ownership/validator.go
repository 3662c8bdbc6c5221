package ownership

import (
	"context"
	"errors"
	"fmt"

	"cvlm/internal/domain"
	"cvlm/internal/ports"
)

// Validator 确认资源存在且属于当前用户，没有副作用，可并发重复调用。
type Validator struct {
	cvs     ports.CVRepository
	letters ports.LetterRepository
	history ports.HistoryRepository
	files   ports.FileStore
}

func NewValidator(cvs ports.CVRepository, letters ports.LetterRepository, history ports.HistoryRepository, files ports.FileStore) *Validator {
	return &Validator{cvs: cvs, letters: letters, history: history, files: files}
}

// CV 校验简历归属，并确认其文件仍在存储中。
func (v *Validator) CV(ctx context.Context, id string, user domain.User) (*domain.CV, error) {
	return validate(ctx, v.files, "cv", id, user, v.cvs.GetByID, true)
}

// CVRecord 只校验简历记录的归属，用于删除等不依赖文件的操作。
func (v *Validator) CVRecord(ctx context.Context, id string, user domain.User) (*domain.CV, error) {
	return validate(ctx, v.files, "cv", id, user, v.cvs.GetByID, false)
}

// Letter 校验求职信归属，并确认其文件仍在存储中。
func (v *Validator) Letter(ctx context.Context, id string, user domain.User) (*domain.Letter, error) {
	return validate(ctx, v.files, "letter", id, user, v.letters.GetByID, true)
}

// History 只校验历史记录归属。记录的文件可能已过期清理，是否可下载由调用方判断。
func (v *Validator) History(ctx context.Context, id string, user domain.User) (*domain.HistoryEntry, error) {
	return validate(ctx, v.files, "history entry", id, user, v.history.GetByID, false)
}

// RequireFile 确认存储中存在 key 对应的对象。
func (v *Validator) RequireFile(ctx context.Context, resource, key string) error {
	return requireFile(ctx, v.files, resource, key)
}

func validate[T domain.Owned](
	ctx context.Context,
	files ports.FileStore,
	resource, id string,
	user domain.User,
	load func(context.Context, string) (*T, error),
	withFile bool,
) (*T, error) {
	if id == "" {
		return nil, domain.NotFound(resource)
	}

	res, err := load(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrNoRows) {
			return nil, domain.NotFound(resource)
		}
		return nil, fmt.Errorf("load %s: %w", resource, err)
	}
	if (*res).OwnerID() != user.ID {
		return nil, domain.AccessDenied(resource)
	}

	if withFile {
		fb, ok := any(*res).(domain.FileBacked)
		if ok {
			if err := requireFile(ctx, files, resource, fb.FileRef()); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

func requireFile(ctx context.Context, files ports.FileStore, resource, key string) error {
	if key == "" {
		return domain.NotFound(resource + " file")
	}
	exists, err := files.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("stat %s file: %w", resource, err)
	}
	if !exists {
		return domain.NotFound(resource + " file")
	}
	return nil
}
