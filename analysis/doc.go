package analysis

import "strings"

// harvestDoc collects the comment block immediately above the statement
// starting at off: contiguous '#' lines, with at most the blank line
// between the block and the statement forgiven. A POD section is attached
// only when it is the immediately preceding sibling (again at most one
// blank line away); POD separated further from the symbol is not its
// documentation.
func (ex *extractor) harvestDoc(off int) string {
	if off <= 0 || off > len(ex.src) {
		return ""
	}
	lineStart := lastLineStart(ex.src, off)

	var lines []string
	pos := lineStart
	blanksSkipped := 0
	for pos > 0 {
		prevStart := lastLineStart(ex.src, pos-1)
		line := strings.TrimRight(ex.src[prevStart:pos], "\r\n")
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#"):
			lines = append(lines, strings.TrimSpace(strings.TrimPrefix(trimmed, "#")))
			blanksSkipped = 0
		case trimmed == "" && len(lines) == 0 && blanksSkipped == 0:
			// forgive one blank line between block and symbol
			blanksSkipped++
		default:
			pos = prevStart
			goto done
		}
		pos = prevStart
	}
done:
	if len(lines) > 0 {
		// collected bottom-up; reverse
		for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
			lines[i], lines[j] = lines[j], lines[i]
		}
		return strings.Join(lines, "\n")
	}
	return ex.podDocAbove(lineStart)
}

// podDocAbove returns the text of a POD section whose '=cut' line sits at
// most one blank line above the given position.
func (ex *extractor) podDocAbove(lineStart int) string {
	for _, pod := range ex.res.Pods {
		gap := ex.src[pod.End:min(lineStart, len(ex.src))]
		if pod.End <= lineStart && strings.Count(gap, "\n") <= 1 && strings.TrimSpace(gap) == "" {
			return formatPod(ex.src[pod.Start:pod.End])
		}
	}
	return ""
}

// formatPod strips the POD directives, keeping the prose.
func formatPod(pod string) string {
	var out []string
	for _, line := range strings.Split(pod, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || t == "=cut" {
			continue
		}
		if strings.HasPrefix(t, "=") {
			// drop the directive word, keep a heading's title text
			if i := strings.IndexByte(t, ' '); i >= 0 {
				out = append(out, t[i+1:])
			}
			continue
		}
		out = append(out, t)
	}
	return strings.Join(out, "\n")
}

func lastLineStart(src string, off int) int {
	if off > len(src) {
		off = len(src)
	}
	i := strings.LastIndexByte(src[:off], '\n')
	return i + 1
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
