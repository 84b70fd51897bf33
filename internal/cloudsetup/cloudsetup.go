// Package cloudsetup connects a GitHub repository to an Azure subscription
// with workload identity federation, so GitHub Actions can deploy without
// stored secrets.
package cloudsetup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/process"
)

// GitHubIssuer is the OIDC issuer of GitHub Actions tokens.
const GitHubIssuer = "https://token.actions.githubusercontent.com"

// ErrNotLoggedIn is returned when az or gh has no active session.
var ErrNotLoggedIn = errors.New("not logged in")

// Account is the active az subscription.
type Account struct {
	SubscriptionID   string `json:"id"`
	SubscriptionName string `json:"name"`
	TenantID         string `json:"tenantId"`
	User             struct {
		Name string `json:"name"`
	} `json:"user"`
}

// Plan is what Configure will create.
type Plan struct {
	Repository  string // owner/name
	Environment string // GitHub environment, empty for the main branch
	AppName     string
	Role        string
	Account     Account
}

// Subject is the federated credential subject GitHub presents.
func (p Plan) Subject() string {
	if p.Environment != "" {
		return fmt.Sprintf("repo:%s:environment:%s", p.Repository, p.Environment)
	}
	return fmt.Sprintf("repo:%s:ref:refs/heads/main", p.Repository)
}

// Scope is the subscription the role is assigned on.
func (p Plan) Scope() string {
	return "/subscriptions/" + p.Account.SubscriptionID
}

// Result reports the identities that now exist.
type Result struct {
	AppID       string            `json:"app_id"`
	ObjectID    string            `json:"object_id"`
	CreatedApp  bool              `json:"created_app"`
	Credential  string            `json:"credential"`
	Variables   map[string]string `json:"variables"`
	RoleOnScope string            `json:"role_scope"`
}

// Configurer runs az and gh.
type Configurer struct {
	Runner process.Runner
	Dir    string
}

func (c *Configurer) run(ctx context.Context, name string, args ...string) (string, error) {
	res, err := c.Runner.Run(ctx, process.Command{Name: name, Args: args, Dir: c.Dir})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// AzureAccount returns the logged-in az account.
func (c *Configurer) AzureAccount(ctx context.Context) (Account, error) {
	out, err := c.run(ctx, "az", "account", "show", "--output", "json")
	if err != nil {
		return Account{}, fmt.Errorf("az: %w (run `az login`)", ErrNotLoggedIn)
	}
	var acc Account
	if err := json.Unmarshal([]byte(out), &acc); err != nil {
		return Account{}, fmt.Errorf("failed to parse az account: %w", err)
	}
	return acc, nil
}

// CheckGitHubLogin verifies gh has a session.
func (c *Configurer) CheckGitHubLogin(ctx context.Context) error {
	if _, err := c.run(ctx, "gh", "auth", "status"); err != nil {
		return fmt.Errorf("gh: %w (run `gh auth login`)", ErrNotLoggedIn)
	}
	return nil
}

type adApp struct {
	AppID string `json:"appId"`
	ID    string `json:"id"`
}

func (c *Configurer) findApp(ctx context.Context, name string) (*adApp, error) {
	out, err := c.run(ctx, "az", "ad", "app", "list", "--display-name", name, "--output", "json")
	if err != nil {
		return nil, fmt.Errorf("failed to list Entra applications: %w", err)
	}
	var apps []adApp
	if err := json.Unmarshal([]byte(out), &apps); err != nil {
		return nil, fmt.Errorf("failed to parse Entra applications: %w", err)
	}
	if len(apps) == 0 {
		return nil, nil
	}
	return &apps[0], nil
}

type federatedCredential struct {
	Name      string   `json:"name"`
	Issuer    string   `json:"issuer"`
	Subject   string   `json:"subject"`
	Audiences []string `json:"audiences"`
}

// Configure creates (or reuses) the Entra application, its service
// principal, the federated credential and role assignment, then stores the
// ids as GitHub repository variables. Each step is idempotent.
func (c *Configurer) Configure(ctx context.Context, p Plan) (*Result, error) {
	res := &Result{RoleOnScope: p.Scope()}

	app, err := c.findApp(ctx, p.AppName)
	if err != nil {
		return nil, err
	}
	if app == nil {
		out, err := c.run(ctx, "az", "ad", "app", "create", "--display-name", p.AppName, "--output", "json")
		if err != nil {
			return nil, fmt.Errorf("failed to create Entra application: %w", err)
		}
		app = &adApp{}
		if err := json.Unmarshal([]byte(out), app); err != nil {
			return nil, fmt.Errorf("failed to parse Entra application: %w", err)
		}
		res.CreatedApp = true
	}
	res.AppID, res.ObjectID = app.AppID, app.ID
	debug.Logf("entra application %s (appId %s)\n", p.AppName, app.AppID)

	if _, err := c.run(ctx, "az", "ad", "sp", "show", "--id", app.AppID); err != nil {
		if _, err := c.run(ctx, "az", "ad", "sp", "create", "--id", app.AppID); err != nil {
			return nil, fmt.Errorf("failed to create service principal: %w", err)
		}
	}

	if err := c.ensureCredential(ctx, app.AppID, p); err != nil {
		return nil, err
	}
	res.Credential = p.Subject()

	if _, err := c.run(ctx, "az", "role", "assignment", "create",
		"--assignee", app.AppID, "--role", p.Role, "--scope", p.Scope()); err != nil {
		return nil, fmt.Errorf("failed to assign %s role: %w", p.Role, err)
	}

	res.Variables = map[string]string{
		"AZURE_CLIENT_ID":       app.AppID,
		"AZURE_TENANT_ID":       p.Account.TenantID,
		"AZURE_SUBSCRIPTION_ID": p.Account.SubscriptionID,
	}
	for _, name := range []string{"AZURE_CLIENT_ID", "AZURE_TENANT_ID", "AZURE_SUBSCRIPTION_ID"} {
		if _, err := c.run(ctx, "gh", "variable", "set", name, "--body", res.Variables[name], "--repo", p.Repository); err != nil {
			return nil, fmt.Errorf("failed to set GitHub variable %s: %w", name, err)
		}
	}
	return res, nil
}

func (c *Configurer) ensureCredential(ctx context.Context, appID string, p Plan) error {
	out, err := c.run(ctx, "az", "ad", "app", "federated-credential", "list", "--id", appID, "--output", "json")
	if err != nil {
		return fmt.Errorf("failed to list federated credentials: %w", err)
	}
	var existing []federatedCredential
	if out != "" {
		if err := json.Unmarshal([]byte(out), &existing); err != nil {
			return fmt.Errorf("failed to parse federated credentials: %w", err)
		}
	}
	for _, fc := range existing {
		if fc.Issuer == GitHubIssuer && fc.Subject == p.Subject() {
			return nil
		}
	}

	name := "github-main"
	if p.Environment != "" {
		name = "github-" + p.Environment
	}
	params, err := json.Marshal(federatedCredential{
		Name:      name,
		Issuer:    GitHubIssuer,
		Subject:   p.Subject(),
		Audiences: []string{"api://AzureADTokenExchange"},
	})
	if err != nil {
		return err
	}
	if _, err := c.run(ctx, "az", "ad", "app", "federated-credential", "create", "--id", appID, "--parameters", string(params)); err != nil {
		return fmt.Errorf("failed to create federated credential: %w", err)
	}
	return nil
}
