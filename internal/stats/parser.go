package stats

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

type ChannelStats struct {
	Username      string    `json:"username"`
	Subscribers   *int      `json:"subscribers,omitempty"`
	VerifiedBadge bool      `json:"verified_badge"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Parser scrapes the public t.me pages: subscriber counts for channel
// verification and post pages for the non-mutating existence probe.
type Parser struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
	maxRetries int
}

func NewParser(timeoutMS, maxRetries int, log *zap.Logger) *Parser {
	return &Parser{
		baseURL: "https://t.me",
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		log:        log,
		maxRetries: maxRetries,
	}
}

func (p *Parser) fetchDocument(ctx context.Context, url string) (*goquery.Document, int, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, http.StatusNotFound, nil
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
			time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
			continue
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return doc, http.StatusOK, nil
	}
	return nil, 0, lastErr
}

// FetchChannelStats parses the channel preview page for the subscriber count
// and the verified badge.
func (p *Parser) FetchChannelStats(ctx context.Context, username string) (*ChannelStats, error) {
	doc, status, err := p.fetchDocument(ctx, fmt.Sprintf("%s/s/%s", p.baseURL, username))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("channel %s not found on t.me", username)
	}

	channelStats := &ChannelStats{
		Username:  username,
		FetchedAt: time.Now(),
	}

	doc.Find(".tgme_channel_info_counter .counter_value").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		label := strings.ToLower(strings.TrimSpace(s.Parent().Find(".counter_type").Text()))
		if strings.Contains(label, "subscriber") || strings.Contains(label, "member") {
			n := parseCount(text)
			if n > 0 {
				channelStats.Subscribers = &n
			}
		}
	})

	if channelStats.Subscribers == nil {
		doc.Find(".tgme_channel_info_header_counter").Each(func(i int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if strings.Contains(strings.ToLower(text), "subscriber") || strings.Contains(strings.ToLower(text), "member") {
				n := parseCount(text)
				if n > 0 {
					channelStats.Subscribers = &n
				}
			}
		})
	}

	channelStats.VerifiedBadge = doc.Find(".tgme_channel_info_header_title .verified-icon").Length() > 0

	return channelStats, nil
}

// PostExists probes a post's embed page. 404 or a page without the message
// widget means the post is gone.
func (p *Parser) PostExists(ctx context.Context, username string, messageID int64) (bool, error) {
	doc, status, err := p.fetchDocument(ctx, fmt.Sprintf("%s/%s/%d?embed=1", p.baseURL, username, messageID))
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return false, nil
	}

	if doc.Find(".tgme_widget_message").Length() == 0 {
		// t.me serves a stub page instead of a 404 for deleted posts.
		return false, nil
	}
	return true, nil
}

var countRE = regexp.MustCompile(`[\d,.]+[KkMm]?`)

func parseCount(text string) int {
	text = strings.ReplaceAll(text, " ", "")
	text = strings.ReplaceAll(text, ",", "")

	match := countRE.FindString(text)
	if match == "" {
		return 0
	}

	multiplier := 1
	if strings.HasSuffix(match, "K") || strings.HasSuffix(match, "k") {
		multiplier = 1000
		match = match[:len(match)-1]
	} else if strings.HasSuffix(match, "M") || strings.HasSuffix(match, "m") {
		multiplier = 1000000
		match = match[:len(match)-1]
	}

	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return int(f * float64(multiplier))
}
