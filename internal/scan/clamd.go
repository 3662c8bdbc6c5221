package scan

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dutchcoders/go-clamd"

	"cvlm/internal/ports"
)

// ClamdScanner 通过 clamd INSTREAM 扫描上传内容。
type ClamdScanner struct {
	client *clamd.Clamd
}

var _ ports.UploadScanner = (*ClamdScanner)(nil)

func NewClamdScanner(address string) *ClamdScanner {
	return &ClamdScanner{client: clamd.NewClamd(address)}
}

// Ping 检查 clamd 可达。
func (s *ClamdScanner) Ping() error {
	return s.client.Ping()
}

func (s *ClamdScanner) Scan(ctx context.Context, r io.Reader) (bool, string, error) {
	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := s.client.ScanStream(r, abortChan)
	if err != nil {
		return false, "", fmt.Errorf("clamd scan stream: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return false, "", ctx.Err()
		case result, ok := <-scanChan:
			if !ok {
				return false, "", nil
			}
			switch result.Status {
			case clamd.RES_OK:
			case clamd.RES_FOUND:
				return true, strings.TrimSpace(result.Description), nil
			default:
				return false, "", fmt.Errorf("clamd scan failed: %s", strings.TrimSpace(result.Raw))
			}
		}
	}
}

// Noop 在未启用 clamd 时使用，始终视为干净。
type Noop struct{}

var _ ports.UploadScanner = Noop{}

func (Noop) Scan(context.Context, io.Reader) (bool, string, error) { return false, "", nil }

// New 根据开关选择扫描实现。
func New(enabled bool, address string) ports.UploadScanner {
	if !enabled {
		return Noop{}
	}
	return NewClamdScanner(address)
}
