package kb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/OFFIS-RIT/threadgraph/internal/util"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"

	"github.com/tidwall/gjson"
)

const (
	DefaultWikidataEndpoint = "https://www.wikidata.org/w/api.php"
	DefaultUserAgent        = "threadgraph/1.0 (entity linking)"
	DefaultTimeout          = 15 * time.Second
)

type WikidataParams struct {
	Endpoint   string
	Language   string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration
	Client     *http.Client
}

// WikidataSearcher queries the wbsearchentities action of a MediaWiki API.
type WikidataSearcher struct {
	endpoint   string
	language   string
	userAgent  string
	maxRetries int
	retryWait  time.Duration
	client     *http.Client
}

func NewWikidataSearcher(params WikidataParams) *WikidataSearcher {
	if params.Endpoint == "" {
		params.Endpoint = DefaultWikidataEndpoint
	}
	if params.Language == "" {
		params.Language = "en"
	}
	if params.UserAgent == "" {
		params.UserAgent = DefaultUserAgent
	}
	if params.Timeout <= 0 {
		params.Timeout = DefaultTimeout
	}
	if params.Client == nil {
		params.Client = &http.Client{Timeout: params.Timeout}
	}

	return &WikidataSearcher{
		endpoint:   params.Endpoint,
		language:   params.Language,
		userAgent:  params.UserAgent,
		maxRetries: max(params.MaxRetries, 1),
		retryWait:  params.RetryWait,
		client:     params.Client,
	}
}

// Search returns the candidates for query. 401 and 403 responses yield an
// AuthError, every other failure an UnavailableError after the configured
// number of attempts.
func (s *WikidataSearcher) Search(ctx context.Context, query string) ([]Candidate, error) {
	return util.RetryWithContextIf(ctx, util.RetryPolicy{
		MaxTries:  s.maxRetries,
		Wait:      s.retryWait,
		Retryable: func(err error) bool { return !errors.Is(err, ErrAuthDenied) },
	}, func(ctx context.Context) ([]Candidate, error) {
		return s.searchOnce(ctx, query)
	})
}

func (s *WikidataSearcher) searchOnce(ctx context.Context, query string) ([]Candidate, error) {
	values := url.Values{}
	values.Set("action", "wbsearchentities")
	values.Set("format", "json")
	values.Set("language", s.language)
	values.Set("search", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &UnavailableError{Query: query, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Status: resp.StatusCode, Query: query}
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &UnavailableError{Status: resp.StatusCode, Query: query}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Status: resp.StatusCode, Query: query, Err: err}
	}
	if !gjson.ValidBytes(body) {
		logger.Warn("Knowledge base returned invalid JSON", "query", query)
		return nil, nil
	}

	var out []Candidate
	gjson.GetBytes(body, "search").ForEach(func(_, hit gjson.Result) bool {
		c := Candidate{
			ID:    hit.Get("id").String(),
			Label: hit.Get("label").String(),
		}
		for _, alias := range hit.Get("aliases").Array() {
			c.Aliases = append(c.Aliases, alias.String())
		}
		out = append(out, c)
		return true
	})
	return out, nil
}
