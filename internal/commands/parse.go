// Package commands answers the chat commands sent to the bot in private.
package commands

import "strings"

type Kind int

const (
	None Kind = iota
	Help
	Today
	Next
	Locations
)

func (k Kind) String() string {
	switch k {
	case Help:
		return "help"
	case Today:
		return "today"
	case Next:
		return "next"
	case Locations:
		return "locations"
	default:
		return "none"
	}
}

// Command is a parsed chat message. Location is the raw query, possibly empty.
type Command struct {
	Kind     Kind
	Location string
}

// Parse recognizes the closed command set. The leading slash and a
// "@botname" suffix on the command word are optional.
func Parse(text string) Command {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimPrefix(s, "/")
	word, rest, _ := strings.Cut(s, " ")
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}
	if rest != "" {
		s = word + " " + rest
	} else {
		s = word
	}

	switch {
	case s == "help":
		return Command{Kind: Help}
	case s == "locations":
		return Command{Kind: Locations}
	case strings.HasPrefix(s, "azan-today-"):
		return Command{Kind: Today, Location: strings.TrimSpace(strings.TrimPrefix(s, "azan-today-"))}
	case strings.HasPrefix(s, "azan-next-"):
		return Command{Kind: Next, Location: strings.TrimSpace(strings.TrimPrefix(s, "azan-next-"))}
	case strings.HasPrefix(s, "azan-"):
		return Command{Kind: Today, Location: strings.TrimSpace(strings.TrimPrefix(s, "azan-"))}
	}
	return Command{Kind: None}
}
