package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultCratesIOURL is the public crates.io API root.
const DefaultCratesIOURL = "https://crates.io"

const cratesPerPage = 100

// CratesIO lists repositories of crates owned by a crates.io user.
type CratesIO struct {
	Username  string
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

// Name implements Registry.
func (c *CratesIO) Name() string { return "crates.io" }

type cratesUser struct {
	User struct {
		ID    int    `json:"id"`
		Login string `json:"login"`
	} `json:"user"`
}

type cratesPage struct {
	Crates []struct {
		Name       string `json:"name"`
		Repository string `json:"repository"`
	} `json:"crates"`
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
}

// OwnedRepositories implements Registry. Crates without a repository URL
// are skipped.
func (c *CratesIO) OwnedRepositories(ctx context.Context) ([]string, error) {
	var user cratesUser
	if err := c.get(ctx, "/api/v1/users/"+url.PathEscape(c.Username), nil, &user); err != nil {
		return nil, err
	}

	var out []string
	seen := 0
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("user_id", strconv.Itoa(user.User.ID))
		q.Set("per_page", strconv.Itoa(cratesPerPage))
		q.Set("page", strconv.Itoa(page))
		var p cratesPage
		if err := c.get(ctx, "/api/v1/crates", q, &p); err != nil {
			return nil, err
		}
		for _, cr := range p.Crates {
			if cr.Repository != "" {
				out = append(out, cr.Repository)
			}
		}
		seen += len(p.Crates)
		if len(p.Crates) < cratesPerPage || seen >= p.Meta.Total {
			return out, nil
		}
	}
}

func (c *CratesIO) get(ctx context.Context, path string, q url.Values, into any) error {
	base := c.BaseURL
	if base == "" {
		base = DefaultCratesIOURL
	}
	u := base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &RegistryError{Registry: c.Name(), Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	body, err := fetch(c.Client, c.UserAgent, req)
	if err != nil {
		return &RegistryError{Registry: c.Name(), Err: err}
	}
	if err := json.Unmarshal(body, into); err != nil {
		return &RegistryError{Registry: c.Name(), Err: fmt.Errorf("decoding %s: %w", path, err)}
	}
	return nil
}
