package gddns

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Travis-Britz/gddns/mlog"
)

const (
	// DefaultConfigFile is read when no --config-file is given.
	DefaultConfigFile = "/etc/gddns/config.toml"

	DefaultPollInterval = 5 * time.Minute

	ProviderDynDNS2    = "dyndns2"
	ProviderCloudflare = "cloudflare"
)

// Config is a validated configuration file.
type Config struct {
	CacheDir     string
	PollInterval time.Duration
	MetricsAddr  string
	Log          mlog.LogConfig
	PublicIP     PublicIPConfig
	// Hosts are sorted by name.
	Hosts []HostConfig
}

// PublicIPConfig selects how the public address is discovered.
// At most one of URLs, Interface and DNS may be set; with none set DefaultResolver is used.
type PublicIPConfig struct {
	URLs      []string `mapstructure:"urls"`
	Interface string   `mapstructure:"interface"`
	DNS       bool     `mapstructure:"dns"`
}

// HostSettings are the per-host keys of the configuration file, before validation.
type HostSettings struct {
	Provider  string `mapstructure:"provider"`
	DynDNSURL string `mapstructure:"dyndns_url"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token_file"`
	// ServerBackoff is in minutes. Nil means DefaultServerBackoff.
	ServerBackoff *int `mapstructure:"server_backoff"`
}

// HostConfig is a validated host entry.
type HostConfig struct {
	Name          string
	Provider      string
	DynDNSURL     string
	Auth          Auth
	ServerBackoff time.Duration
}

type fileConfig struct {
	CacheDir     string                  `mapstructure:"cache_dir"`
	PollInterval time.Duration           `mapstructure:"poll_interval"`
	MetricsAddr  string                  `mapstructure:"metrics_addr"`
	Log          mlog.LogConfig          `mapstructure:"log"`
	PublicIP     PublicIPConfig          `mapstructure:"public_ip"`
	Hosts        map[string]HostSettings `mapstructure:"hosts"`
}

// LoadConfig reads and validates the configuration file at path.
// The format follows the file extension; TOML is the documented one.
func LoadConfig(path string) (*Config, error) {
	v, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	decoderOpt := func(cfg *mapstructure.DecoderConfig) {
		cfg.ErrorUnused = true
		cfg.WeaklyTypedInput = true
	}
	fc := new(fileConfig)
	if err := v.Unmarshal(fc, decoderOpt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return fc.validate()
}

// ReadCacheDir returns the cache_dir setting of the configuration file at path,
// or "" if it is not set. Nothing else in the file is decoded or validated,
// so it works for commands that never contact a server.
func ReadCacheDir(path string) (string, error) {
	v, err := readConfigFile(path)
	if err != nil {
		return "", err
	}
	return v.GetString("cache_dir"), nil
}

func readConfigFile(path string) (*viper.Viper, error) {
	// Hostnames are map keys and contain dots, so dots cannot be the key delimiter.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return v, nil
}

func (fc *fileConfig) validate() (*Config, error) {
	cfg := &Config{
		CacheDir:     fc.CacheDir,
		PollInterval: fc.PollInterval,
		MetricsAddr:  fc.MetricsAddr,
		Log:          fc.Log,
		PublicIP:     fc.PublicIP,
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollInterval < 0 {
		return nil, fmt.Errorf("poll_interval must be positive, got %s", cfg.PollInterval)
	}
	if err := cfg.PublicIP.validate(); err != nil {
		return nil, err
	}
	if len(fc.Hosts) == 0 {
		return nil, errors.New("no hosts are configured")
	}

	var errs []error
	for name, hs := range fc.Hosts {
		hc, err := NewHostConfig(name, hs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cfg.Hosts = append(cfg.Hosts, hc)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	sort.Slice(cfg.Hosts, func(i, j int) bool { return cfg.Hosts[i].Name < cfg.Hosts[j].Name })
	return cfg, nil
}

func (p PublicIPConfig) validate() error {
	set := 0
	if len(p.URLs) > 0 {
		set++
	}
	if p.Interface != "" {
		set++
	}
	if p.DNS {
		set++
	}
	if set > 1 {
		return errors.New("public_ip: only one of urls, interface and dns may be set")
	}
	return nil
}

// Resolver builds the resolver selected by p.
func (p PublicIPConfig) Resolver(httpClient *http.Client) (Resolver, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	switch {
	case len(p.URLs) > 0:
		return WebResolverWithClient(httpClient, p.URLs...)
	case p.Interface != "":
		return InterfaceResolver(p.Interface), nil
	case p.DNS:
		return OpenDNSResolver{}, nil
	default:
		return DefaultResolver, nil
	}
}

// NewHostConfig validates the settings for one host.
// Exactly one form of credentials must be present:
// a username and password, a token, or a token file.
// ${VAR} references in credentials are expanded from the environment.
func NewHostConfig(name string, hs HostSettings) (HostConfig, error) {
	fail := func(format string, args ...any) (HostConfig, error) {
		return HostConfig{}, fmt.Errorf("host %q: %s", name, fmt.Sprintf(format, args...))
	}

	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, os.PathSeparator) {
		return fail("invalid hostname")
	}

	hc := HostConfig{
		Name:          name,
		Provider:      hs.Provider,
		DynDNSURL:     hs.DynDNSURL,
		ServerBackoff: DefaultServerBackoff,
	}
	if hc.Provider == "" {
		hc.Provider = ProviderDynDNS2
	}
	if hs.ServerBackoff != nil {
		if *hs.ServerBackoff < 0 {
			return fail("server_backoff must not be negative")
		}
		hc.ServerBackoff = time.Duration(*hs.ServerBackoff) * time.Minute
	}

	username := os.ExpandEnv(hs.Username)
	password := os.ExpandEnv(hs.Password)
	token := os.ExpandEnv(hs.Token)

	forms := 0
	if username != "" || password != "" {
		if username == "" || password == "" {
			return fail("username and password must be set together")
		}
		hc.Auth = BasicAuth{Username: username, Password: password}
		forms++
	}
	if token != "" {
		hc.Auth = TokenAuth{Token: token}
		forms++
	}
	if hs.TokenFile != "" {
		key, err := readKey(hs.TokenFile)
		if err != nil {
			return fail("%s", err)
		}
		hc.Auth = TokenAuth{Token: key}
		forms++
	}
	switch {
	case forms == 0:
		return fail("no credentials: set username and password, token, or token_file")
	case forms > 1:
		return fail("more than one form of credentials: set only one of username/password, token and token_file")
	}

	switch hc.Provider {
	case ProviderDynDNS2:
		if hc.DynDNSURL == "" {
			return fail("dyndns_url is required")
		}
	case ProviderCloudflare:
		if _, ok := hc.Auth.(TokenAuth); !ok {
			return fail("the cloudflare provider needs an API token")
		}
	default:
		return fail("unknown provider %q", hc.Provider)
	}
	return hc, nil
}

// NewClient builds the update client for hc.
func NewClient(hc HostConfig, httpClient *http.Client, logger *zap.Logger) (Client, error) {
	switch hc.Provider {
	case ProviderDynDNS2:
		return NewDynDNS2Client(hc.DynDNSURL, hc.Auth, httpClient, logger)
	case ProviderCloudflare:
		token, ok := hc.Auth.(TokenAuth)
		if !ok {
			return nil, fmt.Errorf("host %q: the cloudflare provider needs an API token", hc.Name)
		}
		return NewCloudflareClient(token.Token, httpClient, logger)
	default:
		return nil, fmt.Errorf("host %q: unknown provider %q", hc.Name, hc.Provider)
	}
}

// NewHosts builds a client for every configured host.
func (cfg *Config) NewHosts(httpClient *http.Client, logger *zap.Logger) ([]Host, error) {
	hosts := make([]Host, 0, len(cfg.Hosts))
	for _, hc := range cfg.Hosts {
		client, err := NewClient(hc, httpClient, logger)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, Host{Name: hc.Name, Client: client, ServerBackoff: hc.ServerBackoff})
	}
	return hosts, nil
}

func readKey(path string) (key string, err error) {
	if err := verifyPermissions(path); err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	keyb, _, err := r.ReadLine()
	if err != nil {
		return "", fmt.Errorf("error reading line: %w", err)
	}
	return strings.TrimSpace(string(keyb)), nil
}

func verifyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking key file permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0o600 && perms != 0o400 {
		return fmt.Errorf("invalid permissions for %q: expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}
	return nil
}
