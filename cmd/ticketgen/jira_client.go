package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	actionableTicketsJQL     = "assignee = currentUser() AND statusCategory != Done ORDER BY updated DESC"
	inProgressTransitionName = "in progress"
	jiraMyselfPath           = "/rest/api/2/myself"
	jiraTimeLayout           = "2006-01-02T15:04:05.000-0700"
	jiraRequestTimeout       = 30 * time.Second
)

type Ticket struct {
	Key            string
	Summary        string
	Description    string
	Status         string
	StatusCategory string
	Updated        time.Time
}

type TrackerUser struct {
	AccountID    string
	DisplayName  string
	EmailAddress string
}

// JiraClient talks to the Jira REST API with basic auth (email + API token).
type JiraClient struct {
	baseURL string
	email   string
	token   string
	limit   int
	search  string
	http    *http.Client
	log     *logrus.Logger
}

type jiraSearchResponse struct {
	Issues []jiraIssue `json:"issues"`
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string          `json:"summary"`
		Description json.RawMessage `json:"description"`
		Updated     string          `json:"updated"`
		Status      struct {
			Name           string `json:"name"`
			StatusCategory struct {
				Key  string `json:"key"`
				Name string `json:"name"`
			} `json:"statusCategory"`
		} `json:"status"`
	} `json:"fields"`
}

type jiraTransitionsResponse struct {
	Transitions []jiraTransition `json:"transitions"`
}

type jiraTransition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type jiraUser struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// NewJiraClient takes the ticket cap and search endpoint from cfg. Jira
// Cloud serves /rest/api/3/search/jql; Server and Data Center still use
// /rest/api/2/search.
func NewJiraClient(creds Credentials, cfg Config, log *logrus.Logger) *JiraClient {
	limit := cfg.TicketLimit
	if limit <= 0 {
		limit = defaultTicketLimit
	}
	if log == nil {
		log = discardLogger()
	}
	return &JiraClient{
		baseURL: strings.TrimRight(creds.JiraBaseURL, "/"),
		email:   creds.JiraEmail,
		token:   creds.JiraAPIToken,
		limit:   limit,
		search:  orDefault(strings.TrimSpace(cfg.JiraSearchPath), defaultJiraSearchPath),
		http:    &http.Client{Timeout: jiraRequestTimeout},
		log:     log,
	}
}

// ListActionableTickets returns up to the configured cap of tickets assigned
// to the caller that are not done, most recently updated first.
func (c *JiraClient) ListActionableTickets(ctx context.Context) ([]Ticket, error) {
	q := url.Values{}
	q.Set("jql", actionableTicketsJQL)
	q.Set("maxResults", strconv.Itoa(c.limit))
	q.Set("fields", "summary,description,status,updated")

	var resp jiraSearchResponse
	if err := c.do(ctx, http.MethodGet, c.search+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	tickets := make([]Ticket, 0, len(resp.Issues))
	for _, issue := range resp.Issues {
		if len(tickets) >= c.limit {
			break
		}
		tickets = append(tickets, Ticket{
			Key:            strings.TrimSpace(issue.Key),
			Summary:        strings.TrimSpace(issue.Fields.Summary),
			Description:    descriptionText(issue.Fields.Description),
			Status:         strings.TrimSpace(issue.Fields.Status.Name),
			StatusCategory: strings.TrimSpace(issue.Fields.Status.StatusCategory.Name),
			Updated:        parseJiraTime(issue.Fields.Updated),
		})
	}
	c.log.WithFields(logrus.Fields{"count": len(tickets), "limit": c.limit}).Debug("listed actionable tickets")
	return tickets, nil
}

// TransitionToInProgress applies the ticket's "In Progress" transition. It
// reports false when the workflow offers no such transition.
func (c *JiraClient) TransitionToInProgress(ctx context.Context, key string) (bool, error) {
	path := "/rest/api/2/issue/" + url.PathEscape(key) + "/transitions"
	var resp jiraTransitionsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	transition, ok := findTransition(resp.Transitions, inProgressTransitionName)
	if !ok {
		c.log.WithFields(logrus.Fields{"ticket": key, "available": len(resp.Transitions)}).Debug("no in-progress transition")
		return false, nil
	}
	body := map[string]any{"transition": map[string]string{"id": transition.ID}}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (c *JiraClient) CurrentUser(ctx context.Context) (TrackerUser, error) {
	var u jiraUser
	if err := c.do(ctx, http.MethodGet, jiraMyselfPath, nil, &u); err != nil {
		return TrackerUser{}, err
	}
	return TrackerUser{AccountID: u.AccountID, DisplayName: u.DisplayName, EmailAddress: u.EmailAddress}, nil
}

func findTransition(transitions []jiraTransition, name string) (jiraTransition, bool) {
	for _, t := range transitions {
		if strings.EqualFold(strings.TrimSpace(t.Name), name) {
			return t, true
		}
	}
	return jiraTransition{}, false
}

func (c *JiraClient) do(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jira %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthError{Service: "jira", Err: fmt.Errorf("%s", resp.Status)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("jira %s %s: %s: %s", method, path, resp.Status, trimmedCommandOutput(string(data)))
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("jira %s %s: decode response: %w", method, path, err)
	}
	return nil
}

// descriptionText accepts both the plain-text (v2) and Atlassian document
// (v3) description encodings.
func descriptionText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var b strings.Builder
	doc.writeText(&b)
	return strings.TrimSpace(b.String())
}

type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text"`
	Content []adfNode `json:"content"`
}

func (n adfNode) writeText(b *strings.Builder) {
	if n.Type == "text" {
		b.WriteString(n.Text)
	}
	if n.Type == "hardBreak" {
		b.WriteString("\n")
	}
	for _, child := range n.Content {
		child.writeText(b)
	}
	switch n.Type {
	case "paragraph", "heading", "listItem", "codeBlock":
		b.WriteString("\n")
	}
}

func parseJiraTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(jiraTimeLayout, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
