package membership

import (
	"fmt"
	"strings"
	"time"
)

func graceText(grace time.Duration) string {
	m := int(grace / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}

// WarningText is the private notice sent on the first detection.
func WarningText(names []string, grace time.Duration) string {
	return fmt.Sprintf("⚠️ *DUPLICATE GROUP DETECTION* ⚠️\n\nYou are detected in multiple Azan reminder groups: *%s*.\n\nPlease kindly leave from one, otherwise you will be *automatically removed from ALL* of them in %s.",
		strings.Join(names, ", "), graceText(grace))
}

// RemovalText is sent after the subscriber was removed.
func RemovalText(names []string, grace time.Duration) string {
	return fmt.Sprintf("🚫 You have been removed from the groups: *%s* because you did not leave one within %s of the warning.",
		strings.Join(names, ", "), graceText(grace))
}
