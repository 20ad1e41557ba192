package discover

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultPyPIURL is the public PyPI root.
const DefaultPyPIURL = "https://pypi.org"

// repositoryKeys are the project_urls labels that name a source
// repository, most specific first.
var repositoryKeys = []string{"Repository", "Source", "Source Code", "Code", "GitHub", "Homepage"}

// PyPI lists repositories of projects a PyPI user owns or maintains. The
// project list comes from the XML-RPC user_packages call, which PyPI offers
// no JSON equivalent for; each project's repository comes from its JSON
// metadata.
type PyPI struct {
	Username  string
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

// Name implements Registry.
func (p *PyPI) Name() string { return "pypi" }

// OwnedRepositories implements Registry. Projects without a recognizable
// repository URL are skipped.
func (p *PyPI) OwnedRepositories(ctx context.Context) ([]string, error) {
	projects, err := p.userPackages(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range projects {
		repo, err := p.repository(ctx, name)
		if err != nil {
			return nil, err
		}
		if repo != "" {
			out = append(out, repo)
		}
	}
	return out, nil
}

func (p *PyPI) base() string {
	if p.BaseURL == "" {
		return DefaultPyPIURL
	}
	return strings.TrimSuffix(p.BaseURL, "/")
}

// rpcValue is an XML-RPC value holding either a string or an array.
// Untyped values arrive as character data.
type rpcValue struct {
	Text   string     `xml:",chardata"`
	String *string    `xml:"string"`
	Array  []rpcValue `xml:"array>data>value"`
}

func (v rpcValue) str() string {
	if v.String != nil {
		return *v.String
	}
	return strings.TrimSpace(v.Text)
}

type rpcResponse struct {
	Params []rpcValue `xml:"params>param>value"`
	Fault  *struct {
		Value rpcValue `xml:"value"`
	} `xml:"fault"`
}

const userPackagesCall = `<?xml version="1.0"?>
<methodCall><methodName>user_packages</methodName><params><param><value><string>%s</string></value></param></params></methodCall>`

// userPackages returns the projects the user holds any role on, in the
// order PyPI lists them, without duplicates.
func (p *PyPI) userPackages(ctx context.Context) ([]string, error) {
	var name bytes.Buffer
	if err := xml.EscapeText(&name, []byte(p.Username)); err != nil {
		return nil, &RegistryError{Registry: p.Name(), Err: err}
	}
	call := fmt.Sprintf(userPackagesCall, name.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base()+"/pypi", strings.NewReader(call))
	if err != nil {
		return nil, &RegistryError{Registry: p.Name(), Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "text/xml")
	body, err := fetch(p.Client, p.UserAgent, req)
	if err != nil {
		return nil, &RegistryError{Registry: p.Name(), Err: err}
	}

	var resp rpcResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, &RegistryError{Registry: p.Name(), Err: fmt.Errorf("decoding user_packages: %w", err)}
	}
	if resp.Fault != nil {
		return nil, &RegistryError{Registry: p.Name(), Err: fmt.Errorf("user_packages fault: %s", resp.Fault.Value.str())}
	}
	if len(resp.Params) != 1 {
		return nil, &RegistryError{Registry: p.Name(), Err: fmt.Errorf("user_packages returned %d values", len(resp.Params))}
	}

	var out []string
	seen := make(map[string]bool)
	for _, pair := range resp.Params[0].Array {
		// Each entry is [role, project].
		if len(pair.Array) != 2 {
			continue
		}
		project := pair.Array[1].str()
		if project == "" || seen[project] {
			continue
		}
		seen[project] = true
		out = append(out, project)
	}
	return out, nil
}

type pypiProject struct {
	Info struct {
		HomePage    string            `json:"home_page"`
		ProjectURLs map[string]string `json:"project_urls"`
	} `json:"info"`
}

// repository picks the source repository URL of a project from its
// metadata, or "" when none is declared.
func (p *PyPI) repository(ctx context.Context, project string) (string, error) {
	path := "/pypi/" + url.PathEscape(project) + "/json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base()+path, nil)
	if err != nil {
		return "", &RegistryError{Registry: p.Name(), Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	body, err := fetch(p.Client, p.UserAgent, req)
	if err != nil {
		return "", &RegistryError{Registry: p.Name(), Err: err}
	}
	var meta pypiProject
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", &RegistryError{Registry: p.Name(), Err: fmt.Errorf("decoding %s: %w", path, err)}
	}
	for _, key := range repositoryKeys {
		if u := meta.Info.ProjectURLs[key]; u != "" {
			return u, nil
		}
	}
	return meta.Info.HomePage, nil
}
