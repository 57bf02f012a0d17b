package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-dm/internal/account"
	"github.com/vovakirdan/wirechat-dm/internal/config"
	"github.com/vovakirdan/wirechat-dm/internal/log"
	"github.com/vovakirdan/wirechat-dm/internal/remote"
)

// cli carries what every subcommand needs once flags and config are resolved.
type cli struct {
	configPath string
	logLevel   string
	serverURL  string

	cfg config.Config
	log *zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "wirechat-dm",
		Short:         "Direct messaging server and terminal client",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to config file (default ./config.yaml)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&c.serverURL, "server", "", "server base URL for client commands")

	root.AddCommand(
		newServeCmd(c),
		newRegisterCmd(c),
		newLoginCmd(c),
		newUsersCmd(c),
		newTokenCmd(c),
		newLogoutCmd(c),
		newChatCmd(c),
		newSmokeCmd(c),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command) error {
	bootstrap := log.NewWithWriter(cmd.ErrOrStderr(), "info")
	cfg, path, err := config.Load(bootstrap, c.configPath)
	if err != nil {
		return err
	}

	cfg.UpdateFrom(config.Config{LogLevel: c.logLevel, ServerURL: c.serverURL})

	c.cfg = cfg
	// stdout belongs to command output; logs go to stderr.
	c.log = log.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel)
	c.log.Debug().Str("config", path).Msg("configuration loaded")
	return nil
}

func (c *cli) client() (*remote.Client, error) {
	return remote.New(c.cfg.ServerURL,
		remote.WithLogger(c.log),
		remote.WithReconnect(c.cfg.ReconnectDelay, c.cfg.MaxReconnectDelay),
	)
}

// session builds an account session whose notifications go to out.
func (c *cli) session(out io.Writer) (*account.Session, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	notify := account.NotifierFunc(func(msg string) {
		_, _ = fmt.Fprintln(out, msg)
	})
	return account.NewSession(client, c.cfg.SessionPath, notify, c.log), nil
}

// signedIn is session plus Resume.
func (c *cli) signedIn(out io.Writer) (*account.Session, error) {
	s, err := c.session(out)
	if err != nil {
		return nil, err
	}
	if _, err := s.Resume(); err != nil {
		return nil, fmt.Errorf("%w: run login or register first", err)
	}
	return s, nil
}

func readImage(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}
