package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/resvault/internal/client/client"
	"github.com/dmitrijs2005/resvault/internal/client/config"
)

// newClient is a test seam for the protocol client.
var newClient = func(cfg *config.Config) client.Client {
	return client.NewHTTPClient(cfg.ServerURL, &http.Client{Timeout: cfg.Timeout})
}

var errNotLoggedIn = errors.New("not logged in, run 'resvault login' first")

// App is the state shared by one command invocation.
type App struct {
	config *config.Config
	client client.Client
	creds  *Credentials
	in     *bufio.Reader
	out    io.Writer
}

func newApp(cfg *config.Config, in io.Reader, out io.Writer) (*App, error) {
	creds, err := loadCredentials(cfg.TokenFile)
	if err != nil {
		return nil, err
	}
	c := newClient(cfg)
	if creds.ServerURL == cfg.ServerURL && creds.Token != "" {
		c.SetToken(creds.Token)
	}
	return &App{config: cfg, client: c, creds: creds, in: bufio.NewReader(in), out: out}, nil
}

func (a *App) requireToken() error {
	if a.client.Token() == "" {
		return errNotLoggedIn
	}
	return nil
}

// remember stores the current token for later invocations.
func (a *App) remember(username string) error {
	a.creds.ServerURL = a.config.ServerURL
	if username != "" {
		a.creds.UserName = username
	}
	a.creds.Token = a.client.Token()
	return saveCredentials(a.config.TokenFile, a.creds)
}

func (a *App) forget() error {
	a.creds.Token = ""
	return saveCredentials(a.config.TokenFile, a.creds)
}

func (a *App) askUsername(username string) (string, error) {
	if username != "" {
		return username, nil
	}
	return GetSimpleText(a.in, "Username", a.out)
}

func (a *App) askPassword(password string) (string, error) {
	if password != "" {
		return password, nil
	}
	return getPassword(a.out)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
