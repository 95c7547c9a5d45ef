package shared

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

var markdownConverter = md.NewConverter("", true, nil)

// HTMLToMarkdown converts status HTML into Markdown suitable for plain-text targets.
func HTMLToMarkdown(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	out, err := markdownConverter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert html: %w", err)
	}
	return out, nil
}
