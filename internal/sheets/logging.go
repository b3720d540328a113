package sheets

import (
	"log"
	"net/url"
	"regexp"
	"strings"
)

var spreadsheetPathPattern = regexp.MustCompile(`(/spreadsheets/)[a-zA-Z0-9_-]+`)

// sanitizeEndpoint strips credentials, query and fragment from an endpoint
// and masks the spreadsheet id, so log lines carry neither tokens nor the
// identity of the sheet a run reads.
func sanitizeEndpoint(endpoint string) string {
	safe := endpoint
	if parsed, err := url.Parse(endpoint); err == nil {
		parsed.User = nil
		parsed.RawQuery = ""
		parsed.Fragment = ""
		if parsed.Scheme != "" || parsed.Host != "" {
			safe = parsed.Scheme + "://" + parsed.Host + parsed.Path
		} else {
			safe = parsed.Path
		}
		if safe == "" {
			safe = parsed.String()
		}
	} else if idx := strings.Index(endpoint, "?"); idx >= 0 {
		safe = endpoint[:idx]
	}
	return spreadsheetPathPattern.ReplaceAllString(safe, "${1}<redacted>")
}

func logRequest(method, endpoint string) {
	if method == "" && endpoint == "" {
		return
	}

	safe := sanitizeEndpoint(endpoint)
	method = strings.ToUpper(strings.TrimSpace(method))
	switch {
	case method == "" && safe != "":
		log.Printf("sheets request: %s", safe)
	case method != "" && safe == "":
		log.Printf("sheets request: %s", method)
	default:
		log.Printf("sheets request: %s %s", method, safe)
	}
}
