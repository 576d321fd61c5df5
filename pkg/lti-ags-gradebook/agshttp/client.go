// Package agshttp is an AGS client authenticated with the OAuth2 client
// credentials grant.
package agshttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/mind-engage/teameval/pkg/lti-ags-gradebook/gradebook"
)

// AGS scopes requested with the client credentials grant.
const (
	ScopeLineItem = "https://purl.imsglobal.org/spec/lti-ags/scope/lineitem"
	ScopeScore    = "https://purl.imsglobal.org/spec/lti-ags/scope/score"
)

const (
	mediaLineItem          = "application/vnd.ims.lis.v2.lineitem+json"
	mediaLineItemContainer = "application/vnd.ims.lis.v2.lineitemcontainer+json"
	mediaScore             = "application/vnd.ims.lis.v1.score+json"
)

type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string // defaults to lineitem + score
	Timeout      time.Duration
}

type Client struct {
	http *http.Client
}

var _ gradebook.AGSClient = (*Client)(nil)

func New(cfg Config) *Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	if len(cc.Scopes) == 0 {
		cc.Scopes = []string{ScopeLineItem, ScopeScore}
	}
	h := cc.Client(context.Background())
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	return &Client{http: h}
}

type lineItemJSON struct {
	ID             string  `json:"id,omitempty"`
	Label          string  `json:"label"`
	ScoreMaximum   float64 `json:"scoreMaximum"`
	ResourceID     string  `json:"resourceId,omitempty"`
	ResourceLinkID string  `json:"resourceLinkId,omitempty"`
}

func (l lineItemJSON) item() gradebook.LineItem {
	return gradebook.LineItem{
		ID: l.ID, Label: l.Label, ScoreMaximum: l.ScoreMaximum,
		ResourceID: l.ResourceID, ResourceLinkID: l.ResourceLinkID,
	}
}

type scoreJSON struct {
	UserID           string  `json:"userId"`
	ScoreGiven       float64 `json:"scoreGiven"`
	ScoreMaximum     float64 `json:"scoreMaximum"`
	ActivityProgress string  `json:"activityProgress"`
	GradingProgress  string  `json:"gradingProgress"`
	Timestamp        string  `json:"timestamp"`
}

func (c *Client) ListLineItems(ctx context.Context, lineItemsURL string, q map[string]string) ([]gradebook.LineItem, error) {
	u, err := url.Parse(lineItemsURL)
	if err != nil {
		return nil, fmt.Errorf("lineitems url: %w", err)
	}
	p := u.Query()
	for k, v := range q {
		if v != "" {
			p.Set(k, v)
		}
	}
	u.RawQuery = p.Encode()

	var items []lineItemJSON
	if err := c.do(ctx, http.MethodGet, u.String(), "", mediaLineItemContainer, nil, &items); err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	out := make([]gradebook.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.item())
	}
	return out, nil
}

func (c *Client) CreateLineItem(ctx context.Context, lineItemsURL string, req gradebook.CreateLineItemReq) (gradebook.LineItem, error) {
	in := lineItemJSON{
		Label: req.Label, ScoreMaximum: req.ScoreMaximum,
		ResourceID: req.ResourceID, ResourceLinkID: req.ResourceLinkID,
	}
	var created lineItemJSON
	if err := c.do(ctx, http.MethodPost, lineItemsURL, mediaLineItem, mediaLineItem, in, &created); err != nil {
		return gradebook.LineItem{}, fmt.Errorf("create line item: %w", err)
	}
	return created.item(), nil
}

func (c *Client) PostScore(ctx context.Context, lineItemURL string, s gradebook.Score) error {
	in := scoreJSON{
		UserID: s.UserID, ScoreGiven: s.ScoreGiven, ScoreMaximum: s.ScoreMaximum,
		ActivityProgress: s.ActivityProgress, GradingProgress: s.GradingProgress,
		Timestamp: s.Timestamp.Format(time.RFC3339),
	}
	if err := c.do(ctx, http.MethodPost, scoresURL(lineItemURL), mediaScore, "", in, nil); err != nil {
		return fmt.Errorf("post score: %w", err)
	}
	return nil
}

// do sends body as JSON (when non-nil) and decodes a 2xx reply into out (when non-nil).
func (c *Client) do(ctx context.Context, method, target, contentType, accept string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s", method, target, res.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// scoresURL appends /scores to the line item path, keeping any query string.
func scoresURL(lineItemURL string) string {
	u, err := url.Parse(lineItemURL)
	if err != nil {
		return strings.TrimSuffix(lineItemURL, "/") + "/scores"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/scores"
	return u.String()
}
