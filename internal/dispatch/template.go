package dispatch

import "strings"

// Vars are the placeholders a message template may use.
type Vars struct {
	Location string
	District string
	Prayer   string
	Time     string
}

// Render substitutes {{location}}, {{district}}, {{prayer}} and {{time}} in
// tpl. Unknown placeholders are left as written.
func Render(tpl string, v Vars) string {
	return strings.NewReplacer(
		"{{location}}", v.Location,
		"{{district}}", v.District,
		"{{prayer}}", v.Prayer,
		"{{time}}", v.Time,
	).Replace(tpl)
}
