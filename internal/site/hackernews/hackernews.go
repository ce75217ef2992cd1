// Package hackernews watches the Hacker News front page and notifies
// about stories that were not there on the previous check.
package hackernews

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"

	"sitewatch/internal/storage"
	"sitewatch/pkg/logx"
)

const (
	defaultURL      = "https://news.ycombinator.com/"
	defaultSchedule = "*/15 * * * *"

	// maxNotify caps how many new stories one check may report, so a
	// fresh deployment does not blast the whole front page at once.
	maxNotify = 5

	// seenLimit bounds the remembered story ids.
	seenLimit = 500
)

type story struct {
	ID    string
	Title string
	URL   string
}

type state struct {
	Seen []string `json:"seen"`
}

// Options come from the site's config block; fields tagged "-" are
// host-supplied.
type Options struct {
	// URL overrides the front page address.
	URL string `json:"url,omitempty"`

	// Schedule overrides the default check cadence.
	Schedule string `json:"-"`

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client `json:"-"`
}

type Site struct {
	cache    *storage.CacheStore
	log      logx.Logger
	url      string
	schedule string
	client   *http.Client
	attempts uint
}

func New(cache *storage.CacheStore, log logx.Logger, opts Options) *Site {
	s := &Site{
		cache:    cache,
		log:      log.With(logx.String("site", "hackernews")),
		url:      opts.URL,
		schedule: opts.Schedule,
		client:   opts.Client,
		attempts: 3,
	}
	if s.url == "" {
		s.url = defaultURL
	}
	if s.schedule == "" {
		s.schedule = defaultSchedule
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 30 * time.Second}
	}
	return s
}

func (s *Site) ID() string          { return "hackernews" }
func (s *Site) DisplayName() string { return "Hacker News" }
func (s *Site) Description() string { return "New stories on the Hacker News front page" }
func (s *Site) Schedule() string    { return s.schedule }

func (s *Site) CheckUpdates(ctx context.Context) ([]string, error) {
	stories, err := s.fetchFrontPage(ctx)
	if err != nil {
		return nil, err
	}
	if len(stories) == 0 {
		return nil, fmt.Errorf("hackernews: front page yielded no stories")
	}

	var st state
	hadState, err := s.cache.Load(ctx, s.ID(), &st)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(st.Seen))
	for _, id := range st.Seen {
		seen[id] = struct{}{}
	}

	var fresh []story
	for _, story := range stories {
		if _, ok := seen[story.ID]; !ok {
			fresh = append(fresh, story)
		}
	}

	// Newly seen ids go to the front; the tail ages out.
	ids := make([]string, 0, len(fresh)+len(st.Seen))
	for _, story := range fresh {
		ids = append(ids, story.ID)
	}
	ids = append(ids, st.Seen...)
	if len(ids) > seenLimit {
		ids = ids[:seenLimit]
	}
	st.Seen = ids
	if err := s.cache.Save(ctx, s.ID(), st); err != nil {
		return nil, err
	}

	// First run only primes the state.
	if !hadState {
		s.log.Debug("primed story list", logx.Int("stories", len(stories)))
		return nil, nil
	}
	if len(fresh) > maxNotify {
		fresh = fresh[:maxNotify]
	}

	messages := make([]string, 0, len(fresh))
	for _, story := range fresh {
		messages = append(messages, fmt.Sprintf("HN: %s\n%s", story.Title, story.URL))
	}
	return messages, nil
}

func (s *Site) fetchFrontPage(ctx context.Context) ([]story, error) {
	var stories []story
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := s.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("hackernews: HTTP %d", resp.StatusCode)
			}
			stories, err = parseFrontPage(resp.Body, s.url)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Attempts(s.attempts),
		retry.Delay(2*time.Second),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.log.Warn("front page fetch retry", logx.Int("attempt", int(n)), logx.Err(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("hackernews: fetch front page: %w", err)
	}
	return stories, nil
}

func parseFrontPage(body io.Reader, baseURL string) ([]story, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var stories []story
	doc.Find("tr.athing").Each(func(_ int, row *goquery.Selection) {
		id, ok := row.Attr("id")
		if !ok || id == "" {
			return
		}
		link := row.Find("span.titleline > a").First()
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return
		}
		href, _ := link.Attr("href")
		if strings.HasPrefix(href, "item?") {
			href = strings.TrimSuffix(baseURL, "/") + "/" + href
		}
		stories = append(stories, story{ID: id, Title: title, URL: href})
	})
	return stories, nil
}
