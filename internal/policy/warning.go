package policy

import "fmt"

// Severity ranks how close a code is to running out.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityNone     Severity = "none"
)

const (
	criticalThreshold = 1
	warningThreshold  = 3
)

// Warning is the tier and message for a Remaining value.
type Warning struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Classify is the one place the warning thresholds live. Either figure at or
// below 1 is critical; either at or below 3 is a warning.
func Classify(r Remaining) Warning {
	days, downloads := r.DaysRemaining, r.DownloadsRemaining

	switch {
	case days <= criticalThreshold && downloads <= criticalThreshold:
		return Warning{SeverityCritical, fmt.Sprintf("Code expires within a day or after %s", downloadsPhrase(downloads))}
	case days <= criticalThreshold:
		return Warning{SeverityCritical, fmt.Sprintf("Code expires within a day (%s remaining)", plural(downloads, "download"))}
	case downloads <= criticalThreshold:
		return Warning{SeverityCritical, fmt.Sprintf("Only %s remaining (expires in %s)", plural(downloads, "download"), plural(days, "day"))}
	case days <= warningThreshold:
		return Warning{SeverityWarning, fmt.Sprintf("Code expires in %s or after %s", plural(days, "day"), plural(downloads, "download"))}
	case downloads <= warningThreshold:
		return Warning{SeverityWarning, fmt.Sprintf("Only %s remaining (expires in %s)", plural(downloads, "download"), plural(days, "day"))}
	default:
		return Warning{SeverityNone, fmt.Sprintf("%s remaining, expires in %s", plural(downloads, "download"), plural(days, "day"))}
	}
}

func downloadsPhrase(n int) string {
	if n <= 0 {
		return "no more downloads"
	}
	return fmt.Sprintf("%d more %s", n, pluralWord(n, "download"))
}

func plural(n int, word string) string {
	return fmt.Sprintf("%d %s", n, pluralWord(n, word))
}

func pluralWord(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
