// blogcli is a small terminal client for the blog platform. It drives the
// same session manager and gateway client the embedding applications use:
// bootstrap, the two-phase login handshake, and the resource APIs.
//
// Usage:
//
//	blogcli login              print the provider URL to open in a browser
//	blogcli callback <url>     finish the handshake with the redirect URL
//	blogcli posts              list posts
//	blogcli me                 show the current user
//	blogcli logout             clear the session
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/fusionworks/go-blog-client/blog"
	"github.com/fusionworks/go-blog-client/gateway"
	"github.com/fusionworks/go-blog-client/internal/config"
	"github.com/fusionworks/go-blog-client/session"
	"github.com/fusionworks/go-blog-client/session/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := zerolog.WarnLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	flag.Parse()
	command := flag.Arg(0)
	if command == "" {
		displayAppname("blogcli")
		flag.Usage()
		return nil
	}

	st, err := buildStore(cfg)
	if err != nil {
		return err
	}

	manager, err := session.NewManager(session.Config{
		IssuerURL:   cfg.IssuerURL(),
		ClientID:    cfg.KeycloakClientID,
		RedirectURI: cfg.RedirectURI,
	}, st,
		session.WithLogger(log),
		session.WithLoginPrompter(func(authURL string) {
			fmt.Fprintf(os.Stderr, "Session expired. Log in again:\n  %s\n", authURL)
		}),
	)
	if err != nil {
		return err
	}
	defer manager.Close()

	api, err := gateway.New(gateway.Config{
		BaseURL:       cfg.APIBaseURL(),
		RefreshMargin: cfg.RefreshMargin,
	}, manager,
		gateway.WithLogger(log),
		gateway.WithNotifier(gateway.NotifierFunc(func(message string) {
			fmt.Fprintf(os.Stderr, "! %s\n", message)
		})),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap := manager.Bootstrap(ctx)
	log.Debug().Bool("authenticated", snap.Authenticated).Msg("bootstrap complete")

	switch command {
	case "login":
		return cmdLogin(ctx, manager)
	case "callback":
		return cmdCallback(ctx, manager, flag.Arg(1))
	case "posts":
		return cmdPosts(ctx, api)
	case "me":
		return cmdMe(ctx, manager, api)
	case "logout":
		manager.Logout(ctx)
		fmt.Println("Logged out.")
		return nil
	default:
		return errors.Errorf("unknown command %q", command)
	}
}

func buildStore(cfg *config.Config) (store.Store, error) {
	path := cfg.TokenFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return store.NewInMemoryStore(), nil
		}
		path = filepath.Join(home, ".config", "blogcli", "session.json")
	}
	return store.NewFileStore(path)
}

func cmdLogin(ctx context.Context, manager *session.Manager) error {
	authURL, err := manager.BeginLogin(ctx, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Open this URL in a browser, then run:\n\n  blogcli callback '<redirected URL>'\n\n%s\n", authURL)
	return nil
}

func cmdCallback(ctx context.Context, manager *session.Manager, rawURL string) error {
	if rawURL == "" {
		return errors.New("callback needs the redirect URL as an argument")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(err, "parsing callback URL")
	}

	done, err := manager.CompleteLoginIfPending(ctx, session.ParseCallback(u))
	if err != nil {
		return err
	}
	if !done {
		fmt.Println("No login handshake was pending.")
		return nil
	}
	fmt.Printf("Logged in as %s.\n", manager.Claims().Username)
	return nil
}

func cmdPosts(ctx context.Context, api *gateway.Client) error {
	posts, err := blog.NewPostsService(api).List(ctx, &blog.PageQuery{Page: 0, Size: 20})
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		fmt.Println("No posts.")
		return nil
	}
	for _, p := range posts {
		fmt.Printf("%6d  %-40s  %s  %s\n", p.ID, p.Title, p.AuthorUsername, p.CreatedAt.Format("2006-01-02"))
	}
	return nil
}

func cmdMe(ctx context.Context, manager *session.Manager, api *gateway.Client) error {
	if !manager.Authenticated() {
		fmt.Println("Not logged in. Run: blogcli login")
		return nil
	}
	user, err := blog.NewUsersService(api).Me(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s>\n", user.Username, user.Email)
	if manager.HasRole(session.RoleAdmin) {
		fmt.Println("role: admin")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
