package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"cvlm/internal/ports"
)

var ErrEmptyText = errors.New("letter text is empty")

// Renderer 使用 go-rod 在无头浏览器中把求职信渲染为 PDF 文件。
type Renderer struct {
	logger  *slog.Logger
	timeout time.Duration
	bin     string
}

var _ ports.PdfRenderer = (*Renderer)(nil)

// NewRenderer 创建渲染器，timeout 为单次页面操作的上限。
func NewRenderer(logger *slog.Logger, timeout time.Duration) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{logger: logger, timeout: timeout}
	if path, ok := launcher.LookPath(); ok {
		r.bin = path
	}
	return r
}

// Render 把 text 渲染到 destination，返回写入的文件路径。
func (r *Renderer) Render(ctx context.Context, text, destination string) (string, error) {
	html, err := BuildLetterHTML(text)
	if err != nil {
		return "", err
	}
	data, err := r.htmlToPDF(ctx, html)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(destination, data, 0o644); err != nil {
		_ = os.Remove(destination)
		return "", fmt.Errorf("write pdf file: %w", err)
	}
	r.logger.Debug("letter pdf rendered", slog.String("path", destination), slog.Int("bytes", len(data)))
	return destination, nil
}

func (r *Renderer) htmlToPDF(ctx context.Context, htmlContent string) ([]byte, error) {
	launch := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true)
	if r.bin != "" {
		launch = launch.Bin(r.bin)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	defer launch.Cleanup()

	browser := rod.New().ControlURL(browserURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer func() {
		_ = browser.Close()
	}()

	page, err := browser.Timeout(r.timeout).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() {
		_ = page.Close()
	}()

	page = page.Timeout(r.timeout)
	if err := page.SetDocumentContent(htmlContent); err != nil {
		return nil, fmt.Errorf("set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	reader, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("export pdf: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf bytes: %w", err)
	}
	return data, nil
}
