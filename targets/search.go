package targets

import (
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/anvitha22/linkedin-campaign-engine/browser"
	"github.com/anvitha22/linkedin-campaign-engine/ledger"
	"github.com/anvitha22/linkedin-campaign-engine/logger"
)

const peopleSearchURL = "https://www.linkedin.com/search/results/people/"

// SearchSource yields targets discovered from paginated people-search
// results. Pagination state is internal; the start page is fixed at
// construction so an interrupted run can resume from where it stopped.
type SearchSource struct {
	browser *browser.Browser
	logger  *logger.Logger
	query   string

	page       int
	maxTargets int
	yielded    int
	seen       map[string]bool
	pending    []*ledger.Target
	done       bool
}

// NewSearchSource creates a search-backed source. startPage resumes a prior
// run; maxTargets bounds the total yielded (0 means no bound).
func NewSearchSource(b *browser.Browser, log *logger.Logger, query string, startPage, maxTargets int) *SearchSource {
	if startPage < 1 {
		startPage = 1
	}
	return &SearchSource{
		browser:    b,
		logger:     log.WithModule("targets"),
		query:      query,
		page:       startPage,
		maxTargets: maxTargets,
		seen:       make(map[string]bool),
	}
}

// Next returns the next discovered target or io.EOF
func (s *SearchSource) Next() (*ledger.Target, error) {
	if s.maxTargets > 0 && s.yielded >= s.maxTargets {
		return nil, io.EOF
	}

	for len(s.pending) == 0 {
		if s.done {
			return nil, io.EOF
		}
		if err := s.fetchPage(); err != nil {
			return nil, err
		}
	}

	t := s.pending[0]
	s.pending = s.pending[1:]
	s.yielded++
	return t, nil
}

// fetchPage loads the current results page and queues new profile links.
// An empty page ends the sequence.
func (s *SearchSource) fetchPage() error {
	s.logger.WithField("page", s.page).Infof("Loading search results for %q", s.query)

	if err := s.browser.Navigate(s.pageURL()); err != nil {
		return fmt.Errorf("failed to load search page %d: %w", s.page, err)
	}

	links, err := s.browser.ExtractProfileLinks()
	if err != nil {
		return fmt.Errorf("failed to extract profiles from page %d: %w", s.page, err)
	}

	fresh := 0
	for _, link := range links {
		if s.seen[link.URL] {
			continue
		}
		s.seen[link.URL] = true
		s.pending = append(s.pending, &ledger.Target{
			Key:  link.URL,
			Name: link.Name,
		})
		fresh++
	}

	s.logger.WithFields(map[string]interface{}{
		"page":  s.page,
		"found": len(links),
		"fresh": fresh,
	}).Debug("Search page processed")

	if len(links) == 0 {
		s.done = true
	}
	s.page++
	return nil
}

func (s *SearchSource) pageURL() string {
	params := url.Values{}
	params.Set("keywords", s.query)
	if s.page > 1 {
		params.Set("page", strconv.Itoa(s.page))
	}
	return peopleSearchURL + "?" + params.Encode()
}
