package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cvlm/internal/config"
	"cvlm/internal/credit"
	"cvlm/internal/domain"
	"cvlm/internal/history"
	"cvlm/internal/joboffer"
	"cvlm/internal/ownership"
	"cvlm/internal/ports"
)

var (
	errEmptyCVText     = errors.New("cv contains no extractable text")
	errEmptyGeneration = errors.New("llm returned empty text")
)

// Timeouts 是每类外部调用的超时上限，0 表示不限制。
type Timeouts struct {
	Extract  time.Duration
	Fetch    time.Duration
	Generate time.Duration
	Render   time.Duration
	Storage  time.Duration
}

func TimeoutsFromConfig(cfg config.GenerationConfig) Timeouts {
	return Timeouts{
		Extract:  cfg.ExtractTimeout,
		Fetch:    cfg.FetchTimeout,
		Generate: cfg.LLMTimeout,
		Render:   cfg.RenderTimeout,
		Storage:  cfg.StorageTimeout,
	}
}

// GenerationDeps 汇总生成流程依赖的组件。
type GenerationDeps struct {
	Owner      *ownership.Validator
	Guard      credit.Guard
	Ledger     *credit.Ledger
	Recorder   *history.Recorder
	Letters    ports.LetterRepository
	Extractor  ports.DocumentTextExtractor
	Fetcher    ports.JobOfferFetcher
	LLMs       ports.TextGenerators
	Renderer   ports.PdfRenderer
	Files      ports.FileStore
	Timeouts   Timeouts
	ScratchDir string
	Logger     *slog.Logger
	Tracer     trace.Tracer
}

// Orchestrator 串联校验、抽取、抓取、生成、渲染、持久化、记历史与扣额度。
// 额度只在最后一步扣减，任何致命失败都会按逆序清理已产生的文件和记录。
type Orchestrator struct {
	owner      *ownership.Validator
	guard      credit.Guard
	ledger     *credit.Ledger
	recorder   *history.Recorder
	letters    ports.LetterRepository
	extractor  ports.DocumentTextExtractor
	fetcher    ports.JobOfferFetcher
	llms       ports.TextGenerators
	renderer   ports.PdfRenderer
	files      ports.FileStore
	timeouts   Timeouts
	scratchDir string
	logger     *slog.Logger
	tracer     trace.Tracer
	newID      func() string
}

func NewOrchestrator(deps GenerationDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("cvlm/internal/usecase")
	}
	scratch := deps.ScratchDir
	if scratch == "" {
		scratch = os.TempDir()
	}
	return &Orchestrator{
		owner:      deps.Owner,
		guard:      deps.Guard,
		ledger:     deps.Ledger,
		recorder:   deps.Recorder,
		letters:    deps.Letters,
		extractor:  deps.Extractor,
		fetcher:    deps.Fetcher,
		llms:       deps.LLMs,
		renderer:   deps.Renderer,
		files:      deps.Files,
		timeouts:   deps.Timeouts,
		scratchDir: scratch,
		logger:     logger,
		tracer:     tracer,
		newID:      uuid.NewString,
	}
}

type LetterRequest struct {
	CVID     string
	JobURL   string
	Provider string
}

// LetterResult 是 PDF 求职信生成成功后的结果。History 在记历史失败时为 nil。
type LetterResult struct {
	Letter       domain.Letter
	History      *domain.HistoryEntry
	User         domain.User
	DownloadName string
}

type TextRequest struct {
	CVID     string
	JobURL   string
	TextType string
	Provider string
}

type TextResult struct {
	Text       string
	CVFilename string
	History    *domain.HistoryEntry
	User       domain.User
}

// LetterKey 返回求职信 PDF 在文件存储中的 key。
func LetterKey(userID, letterID string) string {
	return fmt.Sprintf("letters/%s/%s.pdf", userID, letterID)
}

// GenerateLetter 生成 PDF 求职信。user 必须是刚从存储读出的快照。
// 调用方断开连接不会中断流程。
func (o *Orchestrator) GenerateLetter(ctx context.Context, user domain.User, req LetterRequest) (_ *LetterResult, retErr error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := o.tracer.Start(ctx, "generation.letter", trace.WithAttributes(attribute.String("user.id", user.ID)))
	defer func() { endSpan(span, retErr) }()

	r := o.newRun(user, domain.ResourcePDF, req.JobURL)
	p, err := o.prepare(ctx, r, req.CVID, req.JobURL, req.Provider)
	if err != nil {
		return nil, err
	}

	letterText, err := o.generate(ctx, r, p, BuildLetterPrompt(p.cvText, p.jobText))
	if err != nil {
		return nil, err
	}

	letterID := o.newID()
	scratch := filepath.Join(o.scratchDir, letterID+".pdf")
	r.onFailure("remove scratch pdf", func(context.Context) error { return removeIfExists(scratch) })

	rendered := scratch
	err = r.call(ctx, domain.StageRendering, o.timeouts.Render, func(ctx context.Context) error {
		path, err := o.renderer.Render(ctx, letterText, scratch)
		if err != nil {
			return err
		}
		if path != "" && path != scratch {
			rendered = path
			r.onFailure("remove rendered pdf", func(context.Context) error { return removeIfExists(path) })
		}
		return nil
	})
	if err != nil {
		return nil, r.fail(ctx, domain.KindRender, err)
	}

	key := LetterKey(user.ID, letterID)
	letter := domain.Letter{
		ID:          letterID,
		UserID:      user.ID,
		CVID:        p.cv.ID,
		JobOfferURL: req.JobURL,
		Filename:    domain.DownloadFilename(p.jobInfo.CompanyName, p.jobInfo.JobTitle),
		FilePath:    key,
		RawText:     letterText,
		LLMProvider: p.provider,
	}
	err = r.call(ctx, domain.StagePersisting, 0, func(ctx context.Context) error {
		size, err := o.upload(ctx, r, rendered, key)
		if err != nil {
			return err
		}
		letter.FileSize = size
		if err := o.letters.Create(ctx, &letter); err != nil {
			return fmt.Errorf("insert letter: %w", err)
		}
		r.onFailure("delete letter row", func(ctx context.Context) error { return o.letters.Delete(ctx, letter.ID) })
		return nil
	})
	if err != nil {
		return nil, r.fail(ctx, domain.KindPersistence, err)
	}

	r.attempt.LetterID = letter.ID
	r.attempt.FilePath = key
	entry := o.record(ctx, r)

	updated, err := o.commit(ctx, r)
	if err != nil {
		return nil, err
	}

	// 临时文件已上传，成功路径上同样删除。
	if err := removeIfExists(rendered); err != nil {
		r.log.Warn("remove scratch pdf failed", slog.String("path", rendered), slog.Any("error", err))
	}
	r.succeed()

	return &LetterResult{
		Letter:       letter,
		History:      entry,
		User:         *updated,
		DownloadName: letter.Filename,
	}, nil
}

// GenerateText 生成纯文本回答，文本只保存在历史记录里。
func (o *Orchestrator) GenerateText(ctx context.Context, user domain.User, req TextRequest) (_ *TextResult, retErr error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := o.tracer.Start(ctx, "generation.text", trace.WithAttributes(
		attribute.String("user.id", user.ID),
		attribute.String("generation.text_type", req.TextType),
	))
	defer func() { endSpan(span, retErr) }()

	r := o.newRun(user, domain.ResourceText, req.JobURL)
	r.attempt.Metadata["text_type"] = req.TextType
	p, err := o.prepare(ctx, r, req.CVID, req.JobURL, req.Provider)
	if err != nil {
		return nil, err
	}

	text, err := o.generate(ctx, r, p, BuildTextPrompt(req.TextType, p.cvText, p.jobText))
	if err != nil {
		return nil, err
	}

	r.attempt.TextContent = text
	entry := o.record(ctx, r)

	updated, err := o.commit(ctx, r)
	if err != nil {
		return nil, err
	}
	r.succeed()

	return &TextResult{
		Text:       text,
		CVFilename: p.cv.Filename,
		History:    entry,
		User:       *updated,
	}, nil
}

type prepared struct {
	cv        *domain.CV
	generator ports.TextGenerator
	provider  string
	jobInfo   domain.JobInfo
	cvText    string
	jobText   string
}

// prepare 完成校验、简历文本抽取和职位抓取。
func (o *Orchestrator) prepare(ctx context.Context, r *run, cvID, jobURL, provider string) (*prepared, error) {
	r.enter(domain.StageValidating)
	if err := validateJobURL(jobURL); err != nil {
		return nil, r.reject(err)
	}
	cv, err := o.owner.CV(ctx, cvID, r.user)
	if err != nil {
		return nil, r.reject(err)
	}
	if err := o.guard.Require(r.user, r.kind); err != nil {
		return nil, r.reject(err)
	}
	generator, err := o.llms.Get(provider)
	if err != nil {
		return nil, r.reject(err)
	}

	p := &prepared{
		cv:        cv,
		generator: generator,
		provider:  providerName(provider, o.llms.Default()),
		jobInfo:   joboffer.ExtractJobInfo(jobURL),
	}
	r.attempt.CVID = cv.ID
	r.attempt.CVFilename = cv.Filename
	r.attempt.JobInfo = p.jobInfo
	r.attempt.Metadata["llm_provider"] = p.provider
	r.log = r.log.With(slog.String("cv_id", cv.ID), slog.String("llm_provider", p.provider))

	err = r.call(ctx, domain.StageExtracting, 0, func(ctx context.Context) error {
		text, err := o.cvText(ctx, cv)
		p.cvText = text
		return err
	})
	if err != nil {
		return nil, r.fail(ctx, domain.KindExtraction, err)
	}

	// 抓取失败不致命，以空的职位文本继续。
	_ = r.call(ctx, domain.StageFetching, o.timeouts.Fetch, func(ctx context.Context) error {
		text, err := o.fetcher.Fetch(ctx, jobURL)
		if err != nil {
			r.log.Warn("job offer fetch failed, continuing without offer text", slog.Any("error", err))
			return err
		}
		p.jobText = text
		return nil
	})
	r.attempt.Metadata["job_offer_chars"] = len(p.jobText)

	return p, nil
}

// cvText 优先使用上传时抽取的文本，没有时从存储的文件重新抽取。
func (o *Orchestrator) cvText(ctx context.Context, cv *domain.CV) (string, error) {
	if text := strings.TrimSpace(cv.RawText); text != "" {
		return text, nil
	}

	storageCtx, cancel := withTimeout(ctx, o.timeouts.Storage)
	defer cancel()
	rc, err := o.files.Open(storageCtx, cv.FilePath)
	if err != nil {
		return "", fmt.Errorf("open cv file: %w", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return "", fmt.Errorf("read cv file: %w", err)
	}

	extractCtx, cancelExtract := withTimeout(ctx, o.timeouts.Extract)
	defer cancelExtract()
	text, err := o.extractor.Extract(extractCtx, data)
	if err != nil {
		return "", fmt.Errorf("extract cv text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", errEmptyCVText
	}
	return strings.TrimSpace(text), nil
}

func (o *Orchestrator) generate(ctx context.Context, r *run, p *prepared, prompt string) (string, error) {
	r.attempt.Metadata["prompt_chars"] = len(prompt)

	var text string
	err := r.call(ctx, domain.StageGenerating, o.timeouts.Generate, func(ctx context.Context) error {
		out, err := p.generator.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(out)
		if text == "" {
			return errEmptyGeneration
		}
		return nil
	})
	if err != nil {
		return "", r.fail(ctx, domain.KindGeneration, err)
	}
	r.attempt.Metadata["output_chars"] = len(text)
	return text, nil
}

// upload 把渲染好的文件写入存储，返回字节数。
func (o *Orchestrator) upload(ctx context.Context, r *run, path, key string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open rendered pdf: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat rendered pdf: %w", err)
	}

	// 先登记清理，写入中途失败留下的残片也会被删除。
	r.onFailure("delete stored pdf", func(ctx context.Context) error {
		_, err := o.files.Delete(ctx, key)
		return err
	})

	storageCtx, cancel := withTimeout(ctx, o.timeouts.Storage)
	defer cancel()
	if _, err := o.files.Save(storageCtx, key, f, info.Size(), "application/pdf"); err != nil {
		return 0, fmt.Errorf("store pdf: %w", err)
	}
	return info.Size(), nil
}

// record 追加成功记录。记录失败不影响后续扣额度。
func (o *Orchestrator) record(ctx context.Context, r *run) *domain.HistoryEntry {
	r.enter(domain.StageRecordingHistory)
	r.attempt.Status = domain.StatusSuccess
	r.attempt.Metadata["duration_ms"] = time.Since(r.started).Milliseconds()

	entry := o.recorder.Record(ctx, r.attempt)
	if entry == nil {
		r.log.Warn("generation succeeded without history entry")
		return nil
	}
	r.onFailure("retract history entry", func(ctx context.Context) error {
		o.recorder.Retract(ctx, entry)
		return nil
	})
	return entry
}

// commit 是成功路径的最后一步。扣减失败时撤回本次产出，保证额度与产物一一对应。
func (o *Orchestrator) commit(ctx context.Context, r *run) (*domain.User, error) {
	var updated *domain.User
	err := r.call(ctx, domain.StageCommittingCredit, 0, func(ctx context.Context) error {
		u, err := o.ledger.CommitDecrement(ctx, r.user, r.kind)
		updated = u
		return err
	})
	if err != nil {
		return nil, r.fail(ctx, domain.KindPersistence, err)
	}
	return updated, nil
}

func (o *Orchestrator) newRun(user domain.User, kind domain.ResourceKind, jobURL string) *run {
	return &run{
		o:    o,
		kind: kind,
		user: user,
		attempt: history.Attempt{
			UserID:   user.ID,
			Type:     kind,
			JobURL:   jobURL,
			Metadata: map[string]any{},
		},
		log: o.logger.With(
			slog.String("user_id", user.ID),
			slog.String("generation_type", string(kind)),
		),
		started: time.Now(),
	}
}

func validateJobURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.InvalidInput("job_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.InvalidInput("job_url must be an absolute http(s) url")
	}
	return nil
}

func providerName(requested, fallback string) string {
	name := strings.ToLower(strings.TrimSpace(requested))
	if name == "" {
		return fallback
	}
	return name
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("generation.error_kind", string(domain.KindOf(err))))
	}
	span.End()
}
