package mediawiki

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lvcoi/youtube2mediawiki/internal/failure"
	"github.com/lvcoi/youtube2mediawiki/internal/log"
)

// Login authenticates the session. The first call obtains a login token, the
// second presents it. Wikis that no longer hand out the token from
// action=login are asked for it through meta=tokens.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return failure.Wrap(failure.CategoryInvalidInput, errors.New("username and password are required"))
	}
	creds := Fields{"lgname": username, "lgpassword": password}

	r, err := c.API(ctx, "login", creds)
	if err != nil {
		return err
	}
	if r.String("login", "result") == "Success" {
		return nil
	}
	token := r.String("login", "token")
	if token == "" {
		tr, err := c.API(ctx, "query", Fields{"meta": "tokens", "type": "login"})
		if err != nil {
			return err
		}
		token = tr.String("query", "tokens", "logintoken")
	}
	if token == "" {
		return failure.WithDetail(failure.CategoryLoginFailed, errors.New("login failed: wiki did not issue a login token"), r)
	}

	creds["lgtoken"] = token
	r, err = c.API(ctx, "login", creds)
	if err != nil {
		return err
	}
	if result := r.String("login", "result"); result != "Success" {
		reason := r.String("login", "reason")
		if reason == "" {
			reason = result
		}
		if apiErr := r.Err(); apiErr != nil && reason == "" {
			reason = apiErr.Error()
		}
		return failure.WithDetail(failure.CategoryLoginFailed, fmt.Errorf("login failed: %s", reason), r)
	}
	log.WithField("user", username).Debug("logged in")
	return nil
}

// EditToken returns a token for editing page. A page that does not exist
// always gets a token; an existing page only when overwrite is set, otherwise
// the error is TargetExists.
func (c *Client) EditToken(ctx context.Context, page string, overwrite bool) (string, error) {
	r, err := c.API(ctx, "query", Fields{"prop": "info", "titles": page, "intoken": "edit"})
	if err != nil {
		return "", err
	}
	if apiErr := r.Err(); apiErr != nil {
		return "", failure.WithDetail(failure.CategoryTransport, fmt.Errorf("token query for %s: %w", page, apiErr), r)
	}
	if code, text, ok := r.Status(); ok {
		return "", failure.WithDetail(failure.CategoryTransport, fmt.Errorf("token query for %s: %d %s", page, code, text), r)
	}

	info, exists := pageInfo(r)
	if exists && !overwrite {
		return "", failure.Wrapf(failure.CategoryTargetExists, "%s already exists", page)
	}
	token := ""
	if info != nil {
		token = info.String("edittoken")
	}
	if token == "" {
		// intoken was removed from prop=info; newer wikis use meta=tokens.
		tr, err := c.API(ctx, "query", Fields{"meta": "tokens", "type": "csrf"})
		if err != nil {
			return "", err
		}
		token = tr.String("query", "tokens", "csrftoken")
	}
	if token == "" || token == "+\\" {
		return "", failure.WithDetail(failure.CategoryLoginFailed,
			fmt.Errorf("no edit token for %s: session is not logged in", page), r)
	}
	return token, nil
}

// pageInfo returns the single page of a prop=info query and whether it exists.
func pageInfo(r Response) (Response, bool) {
	pages := r.Object("query", "pages")
	for id := range pages {
		p := pages.Object(id)
		missing := strings.HasPrefix(id, "-") || p.Has("missing") || p.Has("invalid")
		return p, !missing
	}
	return nil, false
}

// EditPage replaces the text of page. With overwrite unset an existing page is
// left alone and TargetExists is returned.
func (c *Client) EditPage(ctx context.Context, page, text, comment string, overwrite bool) error {
	token, err := c.EditToken(ctx, page, overwrite)
	if err != nil {
		return err
	}
	r, err := c.API(ctx, "edit", Fields{
		"title":   page,
		"text":    text,
		"summary": comment,
		"token":   token,
	})
	if err != nil {
		return err
	}
	if apiErr := r.Err(); apiErr != nil {
		return failure.WithDetail(failure.CategoryEditRejected, fmt.Errorf("edit %s: %w", page, apiErr), r)
	}
	if code, text, ok := r.Status(); ok {
		return failure.WithDetail(failure.CategoryEditRejected, fmt.Errorf("edit %s: %d %s", page, code, text), r)
	}
	if result := r.String("edit", "result"); result != "Success" {
		return failure.WithDetail(failure.CategoryEditRejected, fmt.Errorf("edit %s: result %q", page, result), r)
	}
	return nil
}
