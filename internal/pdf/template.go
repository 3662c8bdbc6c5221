package pdf

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// letterTemplateString 是求职信的 A4 打印模板。
const letterTemplateString = `<!DOCTYPE html>
<html lang="fr">
<head>
    <meta charset="UTF-8">
    <style>
        @page {
            size: A4;
            margin: 2cm;
        }
        body {
            margin: 0;
            padding: 0;
            font-family: Arial, 'Helvetica Neue', sans-serif;
            font-size: 11pt;
            line-height: 1.6;
            color: #111;
            background: white;
        }
        .letter p {
            margin: 0 0 0.9em 0;
            white-space: pre-wrap; /* 保留段内换行 */
            text-align: justify;
        }
    </style>
</head>
<body>
    <div class="letter">
        {{range .Paragraphs}}<p>{{.}}</p>
        {{end}}
    </div>
</body>
</html>
`

var letterTemplate = template.Must(template.New("letter").Parse(letterTemplateString))

type letterData struct {
	Paragraphs []string
}

// Paragraphs 按空行切分正文。
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.Trim(block, "\n ")
		if block == "" {
			continue
		}
		out = append(out, block)
	}
	return out
}

// BuildLetterHTML 把纯文本渲染成打印用 HTML，内容会被转义。
func BuildLetterHTML(text string) (string, error) {
	paragraphs := Paragraphs(text)
	if len(paragraphs) == 0 {
		return "", ErrEmptyText
	}
	var buf bytes.Buffer
	if err := letterTemplate.Execute(&buf, letterData{Paragraphs: paragraphs}); err != nil {
		return "", fmt.Errorf("execute letter template: %w", err)
	}
	return buf.String(), nil
}
