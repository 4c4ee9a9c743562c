// Command users is a command line front end for the users API.
//
//	users --token $TOKEN follow alice
//	users search carol
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"inquisitiveGrimalkin/client"
	"inquisitiveGrimalkin/internal/config"
	"inquisitiveGrimalkin/internal/logging"
	"inquisitiveGrimalkin/internal/transport"
	"inquisitiveGrimalkin/models"
)

func main() {
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if err := newApp(cfg.API, http.DefaultClient, os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// pushJob is the Pushgateway job the client metrics are grouped under.
const pushJob = "users_cli"

func newApp(defaults config.APIConfig, httpClient transport.Doer, stdout, stderr io.Writer) *cli.App {
	var (
		users   *client.UsersService
		metrics *prometheus.Registry
	)

	usernameArg := func(c *cli.Context) (string, error) {
		if c.NArg() != 1 {
			return "", cli.Exit(fmt.Sprintf("usage: users %s <username>", c.Command.Name), 2)
		}
		return c.Args().First(), nil
	}

	return &cli.App{
		Name:      "users",
		Usage:     "follow, unfollow and search users",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-url", Value: defaults.BaseURL, EnvVars: []string{"USERS_API_URL"}, Usage: "users API base address"},
			&cli.StringFlag{Name: "token", Value: defaults.Token, EnvVars: []string{"USERS_TOKEN"}, Usage: "bearer token"},
			&cli.Float64Flag{Name: "rate", Value: defaults.RateLimit, Usage: "max requests per second, 0 for no limit"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log every request"},
			&cli.StringFlag{Name: "pushgateway", Value: defaults.Pushgateway, EnvVars: []string{"USERS_PUSHGATEWAY"}, Usage: "push request metrics to this Pushgateway when done"},
		},
		Before: func(c *cli.Context) error {
			level := "warn"
			if c.Bool("verbose") {
				level = "debug"
			}
			opts := transport.Options{
				RateLimit: c.Float64("rate"),
				Burst:     defaults.Burst,
				Logger:    logging.New(stderr, level, false),
			}
			if c.String("pushgateway") != "" {
				metrics = prometheus.NewRegistry()
				opts.Registerer = metrics
			}
			tr, err := transport.New(httpClient, opts)
			if err != nil {
				return err
			}
			users = client.NewUsersService(tr, client.WithBaseURL(c.String("base-url")), client.WithToken(c.String("token")))
			return nil
		},
		After: func(c *cli.Context) error {
			if metrics == nil {
				return nil
			}
			if err := push.New(c.String("pushgateway"), pushJob).Gatherer(metrics).Push(); err != nil {
				return fmt.Errorf("push metrics: %w", err)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "follow",
				Usage:     "follow a user",
				ArgsUsage: "<username>",
				Action: func(c *cli.Context) error {
					name, err := usernameArg(c)
					if err != nil {
						return err
					}
					msg, err := users.Follow(name).Do(c.Context)
					if err != nil {
						return explain(err)
					}
					fmt.Fprintln(stdout, msg)
					return nil
				},
			},
			{
				Name:      "unfollow",
				Usage:     "stop following a user",
				ArgsUsage: "<username>",
				Action: func(c *cli.Context) error {
					name, err := usernameArg(c)
					if err != nil {
						return err
					}
					msg, err := users.Unfollow(name).Do(c.Context)
					if err != nil {
						return explain(err)
					}
					fmt.Fprintln(stdout, msg)
					return nil
				},
			},
			{
				Name:      "search",
				Usage:     "look a user up by username",
				ArgsUsage: "<username>",
				Action: func(c *cli.Context) error {
					name, err := usernameArg(c)
					if err != nil {
						return err
					}
					u, err := users.SearchForUser(name).Do(c.Context)
					if err != nil {
						return explain(err)
					}
					return printUser(stdout, u)
				},
			},
			{
				Name:      "followers",
				Usage:     "list who follows a user",
				ArgsUsage: "<username>",
				Action: func(c *cli.Context) error {
					name, err := usernameArg(c)
					if err != nil {
						return err
					}
					names, err := users.Followers(name).Do(c.Context)
					if err != nil {
						return explain(err)
					}
					for _, n := range names {
						fmt.Fprintln(stdout, n)
					}
					return nil
				},
			},
			{
				Name:      "following",
				Usage:     "list whom a user follows",
				ArgsUsage: "<username>",
				Action: func(c *cli.Context) error {
					name, err := usernameArg(c)
					if err != nil {
						return err
					}
					names, err := users.Following(name).Do(c.Context)
					if err != nil {
						return explain(err)
					}
					for _, n := range names {
						fmt.Fprintln(stdout, n)
					}
					return nil
				},
			},
			{
				Name:      "counts",
				Usage:     "show follower and following totals",
				ArgsUsage: "<username>",
				Action: func(c *cli.Context) error {
					name, err := usernameArg(c)
					if err != nil {
						return err
					}
					counts, err := users.Counts(name).Do(c.Context)
					if err != nil {
						return explain(err)
					}
					fmt.Fprintf(stdout, "followers: %d\nfollowing: %d\n", counts.Followers, counts.Following)
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "delete an account (your own, or any as ADMIN)",
				ArgsUsage: "<username>",
				Action: func(c *cli.Context) error {
					name, err := usernameArg(c)
					if err != nil {
						return err
					}
					if _, err := users.Delete(name).Do(c.Context); err != nil {
						return explain(err)
					}
					fmt.Fprintln(stdout, "deleted "+name)
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "check the --token against the server",
				Action: func(c *cli.Context) error {
					info, err := users.Validate(c.String("token")).Do(c.Context)
					if err != nil {
						return explain(err)
					}
					fmt.Fprintf(stdout, "%s (%s)\n", info.Username, info.Rank)
					return nil
				},
			},
			{
				Name:  "register",
				Usage: "create an account and print its token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "first-name"},
					&cli.StringFlag{Name: "last-name"},
				},
				Action: func(c *cli.Context) error {
					sess, err := users.Register(models.User{
						Username:  c.String("username"),
						Password:  c.String("password"),
						Email:     c.String("email"),
						FirstName: c.String("first-name"),
						LastName:  c.String("last-name"),
					}).Do(c.Context)
					if err != nil {
						return explain(err)
					}
					fmt.Fprintln(stdout, sess.Token)
					return nil
				},
			},
			{
				Name:  "login",
				Usage: "log in and print a token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
				},
				Action: func(c *cli.Context) error {
					sess, err := users.Login(c.String("username"), c.String("password")).Do(c.Context)
					if err != nil {
						return explain(err)
					}
					fmt.Fprintln(stdout, sess.Token)
					return nil
				},
			},
		},
	}
}

func printUser(w io.Writer, u models.User) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		models.User
		RankName string `json:"rankName"`
	}{u, u.Rank.String()})
}

// explain turns API failures into exit codes: 3 for not found, 1 otherwise.
func explain(err error) error {
	var herr *client.HTTPError
	if errors.As(err, &herr) {
		if client.IsNotFound(err) {
			return cli.Exit(herr.Error(), 3)
		}
		return cli.Exit(herr.Error(), 1)
	}
	return err
}
