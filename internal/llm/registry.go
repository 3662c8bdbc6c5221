package llm

import (
	"sort"
	"strings"

	"cvlm/internal/config"
	"cvlm/internal/domain"
	"cvlm/internal/ports"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Registry 按名称选择文本生成器。
type Registry struct {
	generators      map[string]ports.TextGenerator
	defaultProvider string
}

var _ ports.TextGenerators = (*Registry)(nil)

// NewRegistry 只注册配置了 API key 的提供方。
func NewRegistry(cfg config.LLMConfig) *Registry {
	r := &Registry{generators: map[string]ports.TextGenerator{}, defaultProvider: cfg.DefaultProvider}
	if cfg.OpenAI.APIKey != "" {
		r.Register(ProviderOpenAI, NewOpenAIGenerator(cfg.OpenAI))
	}
	if cfg.Gemini.APIKey != "" {
		r.Register(ProviderGemini, NewGeminiGenerator(cfg.Gemini))
	}
	return r
}

// NewStaticRegistry 使用给定的生成器构建注册表。
func NewStaticRegistry(defaultProvider string, generators map[string]ports.TextGenerator) *Registry {
	r := &Registry{generators: map[string]ports.TextGenerator{}, defaultProvider: defaultProvider}
	for name, g := range generators {
		r.Register(name, g)
	}
	return r
}

func (r *Registry) Register(name string, g ports.TextGenerator) {
	r.generators[strings.ToLower(name)] = g
}

// Get 返回指定提供方，空名称使用默认提供方。
func (r *Registry) Get(provider string) (ports.TextGenerator, error) {
	name := strings.ToLower(strings.TrimSpace(provider))
	if name == "" {
		name = r.defaultProvider
	}
	g, ok := r.generators[name]
	if !ok {
		return nil, domain.InvalidInput("llm provider %q is not available (have %s)", name, strings.Join(r.names(), ", "))
	}
	return g, nil
}

func (r *Registry) Default() string { return r.defaultProvider }

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.generators))
	for n := range r.generators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
