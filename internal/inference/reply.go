package inference

import (
	"regexp"
	"strings"
)

// Slot is one labelled value in a model reply.
type Slot struct {
	Value string
	Found bool
}

// Reply holds the labelled fields extracted from free-form model output.
type Reply struct {
	Title       Slot
	Tags        Slot
	Description Slot
}

// Each label is searched independently. The value is either a bracketed run
// without "]" or the rest of the line.
const valueGrammar = `\s*(?:\[(?P<bracketed>[^\]]+)\]|(?P<plain>[^\n]+))`

var (
	titleRe       = labelPattern(`(?:^|[^副])标题`, `title`)
	tagsRe        = labelPattern(`标签`, `tags`)
	descriptionRe = labelPattern(`描述`, `description|summary`)
	thinkRe       = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// labelPattern matches a Chinese label anywhere, so "文章标题：" still counts,
// and an English label only as a whole word, so "subtitle:" does not.
func labelPattern(cjk, ascii string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)(?:` + cjk + `|(?:^|[^\p{L}])(?i:` + ascii + `))[ \t]*[：:]` + valueGrammar)
}

// ParseReply extracts title, tags and description from a model reply.
// Reasoning blocks emitted by thinking models are ignored.
func ParseReply(text string) Reply {
	text = thinkRe.ReplaceAllString(text, "")
	return Reply{
		Title:       matchSlot(titleRe, text),
		Tags:        matchSlot(tagsRe, text),
		Description: matchSlot(descriptionRe, text),
	}
}

func matchSlot(re *regexp.Regexp, text string) Slot {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return Slot{}
	}
	value := m[re.SubexpIndex("bracketed")]
	if value == "" {
		value = m[re.SubexpIndex("plain")]
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return Slot{}
	}
	return Slot{Value: value, Found: true}
}

// SplitTags splits a tag line on ASCII commas, dropping blanks.
func SplitTags(line string) []string {
	parts := strings.Split(line, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
