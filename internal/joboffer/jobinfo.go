package joboffer

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"cvlm/internal/domain"
)

// ExtractJobInfo 从职位链接推断公司名与职位名。
// 目前只识别 Welcome to the Jungle：
// https://www.welcometothejungle.com/fr/companies/{company}/jobs/{job}
// 其他形态返回空的 JobInfo，从不报错。
func ExtractJobInfo(rawURL string) (info domain.JobInfo) {
	if !strings.Contains(strings.ToLower(rawURL), "welcometothejungle") {
		return domain.JobInfo{}
	}

	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	parts := strings.Split(rawURL, "/")
	company := segmentAfter(parts, "companies")
	job := segmentAfter(parts, "jobs")
	if company == "" || job == "" {
		return domain.JobInfo{}
	}

	company = humanize(company)
	job = humanize(job)
	if company != "" {
		info.CompanyName = &company
	}
	if job != "" {
		info.JobTitle = &job
	}
	return info
}

func segmentAfter(parts []string, marker string) string {
	for i := 0; i+1 < len(parts); i++ {
		if strings.EqualFold(parts[i], marker) {
			return parts[i+1]
		}
	}
	return ""
}

func humanize(slug string) string {
	slug = strings.TrimSpace(strings.ReplaceAll(slug, "-", " "))
	if slug == "" {
		return ""
	}
	// Caser 有状态，不能跨 goroutine 共享。
	return cases.Title(language.French).String(slug)
}
