package domain

import "strings"

// DefaultDownloadName 在缺少公司与职位信息时使用。
const DefaultDownloadName = "lettre_motivation"

// DownloadFilename 由公司名与职位拼出下载文件名，仅用于 Content-Disposition。
// 存储对象始终以不透明 ID 寻址，这里的结果不参与任何路径拼接。
func DownloadFilename(companyName, jobTitle *string) string {
	parts := make([]string, 0, 2)
	for _, p := range []*string{companyName, jobTitle} {
		if p == nil {
			continue
		}
		if v := strings.TrimSpace(*p); v != "" {
			parts = append(parts, v)
		}
	}

	name := DefaultDownloadName
	if len(parts) > 0 {
		name = strings.Join(parts, "_")
	}

	name = strings.NewReplacer(" ", "_", "/", "_").Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	name = strings.Trim(name, "_")
	if name == "" {
		name = DefaultDownloadName
	}
	return name + ".pdf"
}
