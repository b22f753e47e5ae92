// Package cmdutil provides shared utilities for formsctl commands.
package cmdutil

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/marmos91/formsync/internal/cli/credentials"
	"github.com/marmos91/formsync/internal/cli/output"
	"github.com/marmos91/formsync/internal/cli/prompt"
	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/pkg/auth"
	"github.com/marmos91/formsync/pkg/config"
	"github.com/marmos91/formsync/pkg/environment"
	"github.com/marmos91/formsync/pkg/sdk"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ConfigFile string
	BaseURL    string
	Token      string
	Output     string
	NoColor    bool
	Verbose    bool
	Offline    bool
}

// LoadConfig loads the configuration named by --config, or the default
// location, and applies --base-url and the current login profile.
//
// Base URL precedence: --base-url, then the login profile, then config.
func LoadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if Flags.ConfigFile != "" {
		cfg, err = config.MustLoad(Flags.ConfigFile)
	} else {
		cfg, err = config.Load("")
	}
	if err != nil {
		return nil, err
	}

	if Flags.Verbose {
		cfg.Logging.Level = "DEBUG"
	}
	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if url := strings.TrimRight(resolveBaseURL(cfg), "/"); url != cfg.API.BaseURL {
		if err := prompt.ValidateURL(url); err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", url, err)
		}
		// A derived probe URL follows the base URL; an explicit one stays.
		if cfg.Sync.ProbeURL == cfg.API.BaseURL+"/health" {
			cfg.Sync.ProbeURL = url + "/health"
		}
		cfg.API.BaseURL = url
	}
	return cfg, nil
}

func resolveBaseURL(cfg *config.Config) string {
	if Flags.BaseURL != "" {
		return Flags.BaseURL
	}
	if p := currentProfile(); p != nil && p.BaseURL != "" {
		return p.BaseURL
	}
	return cfg.API.BaseURL
}

func currentProfile() *credentials.Profile {
	store, err := credentials.NewStore()
	if err != nil {
		return nil
	}
	p, err := store.Current()
	if err != nil {
		return nil
	}
	return p
}

// Session returns the identity for API calls: --token when given,
// otherwise the current login profile. A missing login is a logged-out
// session, not an error; commands that need a login check it themselves.
func Session() *auth.Session {
	if Flags.Token != "" {
		return auth.NewSession(Flags.Token)
	}
	if p := currentProfile(); p != nil {
		if p.IsExpired() {
			logger.Warn("Stored login has expired; run 'formsctl login' again")
		}
		return p.Session()
	}
	return auth.NewSession("")
}

// OpenClient loads configuration and opens a wired SDK client. --offline
// forces the connectivity probe to report offline.
func OpenClient() (*sdk.Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	opts := []sdk.Option{sdk.WithSession(Session())}
	if Flags.Offline {
		opts = append(opts, sdk.WithProbe(environment.NewStatic(true,
			environment.ParseNetworkClass(cfg.Sync.NetworkClass))))
	}
	return sdk.Open(cfg, opts...)
}

// GetOutputFormatParsed returns the parsed --output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// Printer returns a printer for the --output format on w.
func Printer(w io.Writer) (*output.Printer, error) {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(w, format, !Flags.NoColor), nil
}

// PrintOutput prints data in the --output format. For tables it prints
// emptyMsg when isEmpty, otherwise rows.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, rows output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format == output.FormatTable && isEmpty {
		_, _ = fmt.Fprintln(w, emptyMsg)
		return nil
	}
	return output.Print(w, format, data, rows)
}

// PrintSuccess prints a success line in table format.
func PrintSuccess(msg string) {
	if p, err := Printer(os.Stdout); err == nil {
		p.Success(msg)
	}
}

// PrintWarning prints a warning line in table format.
func PrintWarning(msg string) {
	if p, err := Printer(os.Stdout); err == nil {
		p.Warning(msg)
	}
}

// RunWithConfirmation prompts (unless force) and then runs fn.
func RunWithConfirmation(question string, force bool, fn func() error) error {
	confirmed, err := prompt.ConfirmWithForce(question, force)
	if err != nil {
		return HandleAbort(err)
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}
	return fn()
}

// HandleAbort turns a Ctrl+C at a prompt into a clean exit.
func HandleAbort(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("\nAborted.")
		return nil
	}
	return err
}

// ReadJSONFile decodes the JSON file at path into v. "-" reads stdin.
func ReadJSONFile(path string, v any) error {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// ParseIDList parses a comma-separated list of forms app ids.
func ParseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// BoolToYesNo converts a boolean to "yes" or "no".
func BoolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// EmptyOr returns value, or fallback when value is empty.
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Truncate shortens s to n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n || n < 4 {
		return s
	}
	return string(r[:n-3]) + "..."
}
