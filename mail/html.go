package mail

import (
	"fmt"
	"html"
	"strings"
)

const documentShell = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body>
%s
</body>
</html>`

// renderHTML produces the HTML part every recipient receives. A caller-
// supplied fragment is wrapped in a minimal document shell unless it already
// is a full document; plain text is converted to paragraph-with-line-break
// markup so clients without a text preference still render something
// readable.
func renderHTML(body, bodyHTML string) string {
	if bodyHTML != "" {
		if isFullDocument(bodyHTML) {
			return bodyHTML
		}
		return fmt.Sprintf(documentShell, bodyHTML)
	}
	return fmt.Sprintf(documentShell, textToHTML(body))
}

func isFullDocument(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "<html")
}

func textToHTML(text string) string {
	var b strings.Builder
	for _, para := range strings.Split(strings.TrimSpace(text), "\n\n") {
		escaped := html.EscapeString(para)
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(escaped, "\n", "<br>\n"))
		b.WriteString("</p>\n")
	}
	return b.String()
}
