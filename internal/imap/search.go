package imap

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/vdavid/icloud-mail-mcp/internal/models"
)

// TermKind identifies one IMAP search key.
type TermKind int

const (
	TermAll TermKind = iota
	TermUnseen
	TermSince
	TermBefore
	TermFrom
	// TermText matches the value in the subject OR the body.
	TermText
)

// SearchTerm is one protocol-level predicate. Terms in a list are ANDed.
type SearchTerm struct {
	Kind  TermKind
	Value string
	Date  time.Time
}

// String renders the term the way it goes over the wire.
func (t SearchTerm) String() string {
	switch t.Kind {
	case TermUnseen:
		return "UNSEEN"
	case TermSince:
		return "SINCE " + t.Date.Format("2-Jan-2006")
	case TermBefore:
		return "BEFORE " + t.Date.Format("2-Jan-2006")
	case TermFrom:
		return fmt.Sprintf("FROM %q", t.Value)
	case TermText:
		return fmt.Sprintf("OR SUBJECT %q BODY %q", t.Value, t.Value)
	default:
		return "ALL"
	}
}

// filterDateLayouts are the accepted forms for dateFrom and dateTo.
var filterDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// TranslateFilter maps a SearchFilter to search terms, in this fixed order:
// unread, since, before, from, text. Unparseable dates are skipped.
// A filter that produces nothing yields a single ALL term.
func TranslateFilter(filter models.SearchFilter) []SearchTerm {
	var terms []SearchTerm

	if filter.UnreadOnly {
		terms = append(terms, SearchTerm{Kind: TermUnseen})
	}

	if date, ok := parseFilterDate(filter.DateFrom); ok {
		terms = append(terms, SearchTerm{Kind: TermSince, Date: date})
	}

	if date, ok := parseFilterDate(filter.DateTo); ok {
		terms = append(terms, SearchTerm{Kind: TermBefore, Date: date})
	}

	if from := strings.TrimSpace(filter.FromEmail); from != "" {
		terms = append(terms, SearchTerm{Kind: TermFrom, Value: from})
	}

	if query := strings.TrimSpace(filter.Query); query != "" {
		terms = append(terms, SearchTerm{Kind: TermText, Value: query})
	}

	if len(terms) == 0 {
		return []SearchTerm{{Kind: TermAll}}
	}
	return terms
}

// BuildCriteria compiles terms into go-imap search criteria.
func BuildCriteria(terms []SearchTerm) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()

	for _, term := range terms {
		switch term.Kind {
		case TermUnseen:
			criteria.WithoutFlags = append(criteria.WithoutFlags, imap.SeenFlag)
		case TermSince:
			criteria.Since = term.Date
		case TermBefore:
			criteria.Before = term.Date
		case TermFrom:
			criteria.Header.Add("From", term.Value)
		case TermText:
			subject := imap.NewSearchCriteria()
			subject.Header.Add("Subject", term.Value)
			body := imap.NewSearchCriteria()
			body.Body = []string{term.Value}
			criteria.Or = append(criteria.Or, [2]*imap.SearchCriteria{subject, body})
		case TermAll:
			// An empty criteria set is ALL.
		}
	}

	return criteria
}

func parseFilterDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range filterDateLayouts {
		if date, err := time.Parse(layout, value); err == nil {
			return date, true
		}
	}
	return time.Time{}, false
}

// lastN returns the last n entries of ids. Search results come back in
// sequence order, so these are the most recently added messages.
func lastN(ids []uint32, n int) []uint32 {
	if n <= 0 || n >= len(ids) {
		return ids
	}
	return ids[len(ids)-n:]
}
