package sections

import (
	"regexp"
	"strings"

	"github.com/funcgen/api/internal/models"
	"github.com/funcgen/api/internal/prompt"
)

var (
	// ```javascript, ```js, ``` (optionally followed by a newline)
	openingFence = regexp.MustCompile("```[A-Za-z0-9_+#.-]*[ \t]*\r?\n?")
	closingFence = regexp.MustCompile("```")
)

// Split carves a completion reply into its marked sections. It never fails:
// a section whose opening marker is missing comes back empty, and a section
// whose closing marker is missing runs to the next marker present after it,
// or to the end of the reply.
func Split(reply string, testsRequested bool) *models.GenerationResult {
	s := scanner{text: reply}

	result := &models.GenerationResult{
		Description:    s.section(prompt.MarkerDescription, prompt.MarkerImplementation, prompt.MarkerExample, prompt.MarkerTestCases),
		Implementation: CleanCode(s.section(prompt.MarkerImplementation, prompt.MarkerExample, prompt.MarkerTestCases, prompt.MarkerDescription)),
	}

	if testsRequested {
		result.Example = s.section(prompt.MarkerExample, prompt.MarkerTestCases, prompt.MarkerDescription, prompt.MarkerImplementation)
		tests := s.section(prompt.MarkerTestCases)
		result.TestCases = &tests
	} else {
		// without a test cases section everything after the example belongs to it
		result.Example = s.section(prompt.MarkerExample)
	}

	return result
}

// CleanCode strips markdown fences and surrounding whitespace from code
func CleanCode(code string) string {
	code = openingFence.ReplaceAllString(code, "")
	code = closingFence.ReplaceAllString(code, "")
	return strings.TrimSpace(code)
}

type scanner struct {
	text string
}

// locate returns the start and end offsets of the first occurrence of marker
// at or after from, or -1, -1
func (s scanner) locate(marker string, from int) (start, end int) {
	if from > len(s.text) {
		return -1, -1
	}
	i := strings.Index(s.text[from:], marker)
	if i < 0 {
		return -1, -1
	}
	return from + i, from + i + len(marker)
}

// section returns the trimmed text after the first occurrence of open, up to
// the nearest following occurrence of any of the closing markers
func (s scanner) section(open string, closers ...string) string {
	_, bodyStart := s.locate(open, 0)
	if bodyStart < 0 {
		return ""
	}
	bodyEnd := len(s.text)
	for _, marker := range closers {
		if at, _ := s.locate(marker, bodyStart); at >= 0 && at < bodyEnd {
			bodyEnd = at
		}
	}
	return strings.TrimSpace(s.text[bodyStart:bodyEnd])
}
