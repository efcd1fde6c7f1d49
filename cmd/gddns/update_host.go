package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Travis-Britz/gddns"
	"github.com/Travis-Britz/gddns/mlog"
)

type updateHostFlags struct {
	provider      string
	dyndnsURL     string
	username      string
	password      string
	token         string
	tokenFile     string
	ip            string
	serverBackoff int
}

func newUpdateHostCmd() *cobra.Command {
	f := new(updateHostFlags)
	c := &cobra.Command{
		Use:   "update-host HOSTNAME",
		Short: "Update a specific host providing arguments from the command line.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateHost(cmd, args[0], f)
		},
	}
	fs := c.Flags()
	fs.StringVar(&f.provider, "provider", gddns.ProviderDynDNS2, "Update protocol: dyndns2 or cloudflare")
	fs.StringVarP(&f.dyndnsURL, "dyndns-url", "d", "", "URL for the dynamic DNS update API")
	fs.StringVarP(&f.username, "username", "u", "", "Username for the dynamic DNS service")
	fs.StringVarP(&f.password, "password", "p", "", "Password or access key for the dynamic DNS service (prompted for if omitted)")
	fs.StringVar(&f.token, "token", "", "API token, instead of username and password")
	fs.StringVar(&f.tokenFile, "token-file", "", "File holding the API token; must be mode 0600 or 0400")
	fs.StringVar(&f.ip, "ip", "", "IP address to set instead of looking up the public IP")
	fs.IntVar(&f.serverBackoff, "server-backoff", int(gddns.DefaultServerBackoff.Minutes()), "Minutes to wait after a server error")
	return c
}

func updateHost(cmd *cobra.Command, hostname string, f *updateHostFlags) error {
	ctx := cmd.Context()
	logger := mlog.L()

	if err := promptForSecret(f); err != nil {
		return err
	}
	hc, err := gddns.NewHostConfig(hostname, gddns.HostSettings{
		Provider:      f.provider,
		DynDNSURL:     f.dyndnsURL,
		Username:      f.username,
		Password:      f.password,
		Token:         f.token,
		TokenFile:     f.tokenFile,
		ServerBackoff: &f.serverBackoff,
	})
	if err != nil {
		return err
	}
	client, err := gddns.NewClient(hc, nil, logger)
	if err != nil {
		return err
	}

	resolver := gddns.DefaultResolver
	if f.ip != "" {
		if resolver, err = gddns.FromString(f.ip); err != nil {
			return err
		}
	}
	ip, err := resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("failed to get public IP: %w", err)
	}

	dir, err := cacheDirWithoutHosts()
	if err != nil {
		return err
	}
	u := &gddns.Updater{
		Cache:  gddns.NewResponseCache(dir, gddns.CacheWithLogger(logger)),
		Logger: logger,
	}
	host := gddns.Host{Name: hc.Name, Client: client, ServerBackoff: hc.ServerBackoff}
	if err := u.UpdateHost(ctx, host, ip); err != nil {
		return fmt.Errorf("failed to update %s: %w", hostname, err)
	}
	logger.Info("host is up to date", zap.String("hostname", hostname), zap.Stringer("ip", ip))
	return nil
}

// promptForSecret asks for a password (or token) that was left off the command line,
// as long as stdin is a terminal.
func promptForSecret(f *updateHostFlags) error {
	var target *string
	var what string
	switch {
	case f.username != "" && f.password == "":
		target, what = &f.password, "password"
	case f.provider == gddns.ProviderCloudflare && f.token == "" && f.tokenFile == "":
		target, what = &f.token, "API token"
	default:
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	fmt.Fprintf(os.Stderr, "Enter %s: ", what)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("error reading %s from stdin: %w", what, err)
	}
	*target = strings.TrimSpace(string(secret))
	return nil
}
