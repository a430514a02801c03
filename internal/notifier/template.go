package notifier

import (
	"fmt"
	"regexp"
)

// Notification templates use %(key)s placeholders filled from the JSON
// context stored with each queue row.
var templateKey = regexp.MustCompile(`%\(([^)]+)\)s`)

// renderTemplate substitutes placeholders, leaving unknown keys verbatim so
// a malformed template is visible in the delivered message.
func renderTemplate(tpl string, context map[string]any) string {
	return templateKey.ReplaceAllStringFunc(tpl, func(match string) string {
		key := match[2 : len(match)-2]
		v, ok := context[key]
		if !ok {
			return match
		}
		return fmt.Sprint(v)
	})
}
