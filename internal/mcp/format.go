package mcp

import (
	"fmt"
	"strings"

	"github.com/kbforge/kbmcp/internal/search"
)

// FormatSearchResult formats a search result as markdown.
func FormatSearchResult(query string, result *search.Result) string {
	if result == nil || len(result.Spans) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Search Results for \"%s\"\n\n", query))
	sb.WriteString(fmt.Sprintf("Found %d result", len(result.Spans)))
	if len(result.Spans) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	if result.Degraded {
		fmt.Fprintf(&sb, "> Degraded: source %s unavailable, results may be incomplete.\n\n",
			strings.Join(result.FailedSources, ", "))
	}

	for i, span := range result.Spans {
		fmt.Fprintf(&sb, "### %d. %s [%d:%d] (score: %.4f)\n\n",
			i+1, span.DocumentID, span.Start, span.End, span.Score)
		sb.WriteString(span.Content)
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

// clampLimit bounds a positive limit to [min, max]. Zero means the
// caller left the field unset and gets the default. Negative limits
// must be rejected before calling this.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit == 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
