package joboffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"cvlm/internal/ports"
)

// 职位页中需要提取的区块，按顺序拼接。
var sectionSelectors = []string{
	`div[data-testid="job-section-description"]`,
	`div[data-testid="job-section-experience"]`,
}

// maxOfferBytes 是职位页正文的读取上限，超出部分丢弃。
const maxOfferBytes = 2 << 20

// ErrEmptyOffer 表示页面可访问但没有找到职位正文。
var ErrEmptyOffer = errors.New("job offer sections not found")

// WTTJFetcher 抓取 Welcome to the Jungle 职位页的描述与要求。
type WTTJFetcher struct {
	client    *http.Client
	userAgent string
}

var _ ports.JobOfferFetcher = (*WTTJFetcher)(nil)

func NewWTTJFetcher(userAgent string, timeout time.Duration) *WTTJFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WTTJFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// WithClient 替换 HTTP 客户端。
func (f *WTTJFetcher) WithClient(client *http.Client) *WTTJFetcher {
	cp := *f
	cp.client = client
	return &cp
}

func (f *WTTJFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch job offer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("fetch job offer: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxOfferBytes))
	if err != nil {
		return "", fmt.Errorf("parse job offer: %w", err)
	}
	return extractSections(doc)
}

func extractSections(doc *goquery.Document) (string, error) {
	sections := make([]string, 0, len(sectionSelectors))
	for _, selector := range sectionSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			s.Find("li").Each(func(_ int, li *goquery.Selection) {
				li.PrependHtml("\n• ")
			})
			if text := strings.TrimSpace(s.Text()); text != "" {
				sections = append(sections, text)
			}
		})
	}
	if len(sections) == 0 {
		return "", ErrEmptyOffer
	}
	return strings.Join(sections, "\n\n"), nil
}
