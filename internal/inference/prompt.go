package inference

import (
	"context"
	"log/slog"
	"strings"
	"text/template"
	"unicode/utf8"
)

// UntitledTitle is used when no title exists and the model gave nothing back.
const UntitledTitle = "未命名文档"

const promptHeader = `请分析以下内容并返回结构化结果：

内容：
{{.Content}}

请按以下格式返回结果：
`

var fullPrompt = template.Must(template.New("full").Parse(promptHeader +
	`标题：[8-{{.TitleMax}}字中文标题]
标签：[3-{{.TagsMax}}个中文标签，每个标签不超过4个字，用逗号分隔]
描述：[100-{{.SummaryMax}}字中文总结，突出核心观点]

要求：
- 标题简洁准确，反映内容主题
- 标签要相关且具体，每个标签不超过4个字
- 英文标签全部小写，避免重复
- 描述要结构化，包含核心观点和关键信息

请严格按格式返回，不要添加其他说明。`))

var tagsOnlyPrompt = template.Must(template.New("tags").Parse(promptHeader +
	`标签：[3-{{.TagsMax}}个中文标签，每个标签不超过4个字，用逗号分隔]
描述：[100-{{.SummaryMax}}字中文总结，突出核心观点]

要求：
- 标签要相关且具体，每个标签不超过4个字
- 英文标签全部小写，避免重复
- 描述要结构化，包含核心观点和关键信息

请严格按格式返回，不要添加其他说明。`))

// Limits bounds what is asked of the model.
type Limits struct {
	TitleMax   int
	TagsMax    int
	SummaryMax int
	BodyLimit  int
}

// Suggestion is the model's proposal for one note.
type Suggestion struct {
	Title       string
	Tags        []string
	Description string
	// Degraded is set when the model returned nothing usable.
	Degraded bool
}

// Generator produces suggestions from note bodies.
type Generator struct {
	client *Client
	limits Limits
	logger *slog.Logger
}

// NewGenerator wraps client with prompt construction and reply parsing.
func NewGenerator(client *Client, limits Limits, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: client, limits: limits, logger: logger}
}

// NeedsTitle reports whether currentTitle should be replaced by a generated one.
func (g *Generator) NeedsTitle(currentTitle string) bool {
	return currentTitle == "" || utf8.RuneCountInString(currentTitle) > g.limits.TitleMax
}

// BuildPrompt renders the prompt for body. The tags-and-description variant
// is used when currentTitle is already acceptable.
func (g *Generator) BuildPrompt(body, currentTitle string) string {
	tmpl := tagsOnlyPrompt
	if g.NeedsTitle(currentTitle) {
		tmpl = fullPrompt
	}
	var sb strings.Builder
	// The templates are static and the data is plain strings and ints.
	_ = tmpl.Execute(&sb, struct {
		Content    string
		TitleMax   int
		TagsMax    int
		SummaryMax int
	}{
		Content:    truncateRunes(body, g.limits.BodyLimit),
		TitleMax:   g.limits.TitleMax,
		TagsMax:    g.limits.TagsMax,
		SummaryMax: g.limits.SummaryMax,
	})
	return sb.String()
}

// GenerateAll asks the model for a title, tags and description. It never
// fails: an unreachable service or an empty reply yields the current title
// (or UntitledTitle), existingTags and an empty description.
func (g *Generator) GenerateAll(ctx context.Context, body, currentTitle string, existingTags []string) Suggestion {
	response, err := g.client.Generate(ctx, g.BuildPrompt(body, currentTitle))
	if err != nil {
		g.logger.Warn("ollama call failed", slog.String("error", err.Error()))
	}
	if response == "" {
		title := currentTitle
		if title == "" {
			title = UntitledTitle
		}
		return Suggestion{Title: title, Tags: existingTags, Degraded: true}
	}

	reply := ParseReply(response)
	s := Suggestion{Title: currentTitle, Tags: []string{}}
	if reply.Title.Found {
		s.Title = reply.Title.Value
	}
	if reply.Tags.Found {
		s.Tags = SplitTags(reply.Tags.Value)
	}
	if reply.Description.Found {
		s.Description = reply.Description.Value
	}
	return s
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
