// Package credentials persists formsctl logins. Each profile pairs an API
// base URL with the bearer token used against it.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/marmos91/formsync/pkg/auth"
)

const (
	// DefaultConfigDir is the directory under $XDG_CONFIG_HOME.
	DefaultConfigDir = "formsync"
	// FileName is the credentials file inside DefaultConfigDir.
	FileName = "credentials.json"
	// DefaultProfile is used when login is given no --profile.
	DefaultProfile = "default"

	filePermissions = 0600
	dirPermissions  = 0700
)

var (
	// ErrNoCurrentProfile indicates nobody has logged in yet.
	ErrNoCurrentProfile = errors.New("no current profile set")
	// ErrProfileNotFound indicates the requested profile doesn't exist.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrNotLoggedIn indicates the current profile holds no token.
	ErrNotLoggedIn = errors.New("not logged in - run 'formsctl login' first")
)

// Profile is one saved login.
type Profile struct {
	BaseURL  string `json:"base_url,omitempty"`
	Username string `json:"username,omitempty"`
	Token    string `json:"token,omitempty"`

	// FormsKey marks Token as a forms key rather than a user access token.
	FormsKey  bool      `json:"forms_key,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the token expires within a minute. Tokens
// without an expiry never expire.
func (p *Profile) IsExpired() bool {
	if p.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(time.Minute).After(p.ExpiresAt)
}

// Session returns an auth session for the profile's token.
func (p *Profile) Session() *auth.Session {
	if p.FormsKey {
		return auth.NewFormsKeySession(p.Token)
	}
	return auth.NewSession(p.Token)
}

type file struct {
	Current  string              `json:"current"`
	Profiles map[string]*Profile `json:"profiles"`
}

// Store reads and writes the credentials file.
type Store struct {
	path string
	data file
}

// NewStore opens the store at the default location.
func NewStore() (*Store, error) {
	path, err := defaultPath()
	if err != nil {
		return nil, err
	}
	return NewStoreAt(path)
}

// NewStoreAt opens the store at path. A missing file is an empty store.
func NewStoreAt(path string) (*Store, error) {
	s := &Store{path: path, data: file{Profiles: map[string]*Profile{}}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("corrupt credentials file %s: %w", path, err)
	}
	if s.data.Profiles == nil {
		s.data.Profiles = map[string]*Profile{}
	}
	return s, nil
}

func defaultPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, DefaultConfigDir, FileName), nil
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), dirPermissions); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, filePermissions)
}

// Path returns the credentials file path.
func (s *Store) Path() string {
	return s.path
}

// Current returns the current profile.
func (s *Store) Current() (*Profile, error) {
	if s.data.Current == "" {
		return nil, ErrNoCurrentProfile
	}
	p, ok := s.data.Profiles[s.data.Current]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

// CurrentName returns the name of the current profile.
func (s *Store) CurrentName() string {
	return s.data.Current
}

// Get returns the named profile.
func (s *Store) Get(name string) (*Profile, error) {
	p, ok := s.data.Profiles[name]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

// Names returns the profile names, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.data.Profiles))
	for name := range s.data.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Login saves p under name and makes it current.
func (s *Store) Login(name string, p *Profile) error {
	if name == "" {
		name = DefaultProfile
	}
	s.data.Profiles[name] = p
	s.data.Current = name
	return s.save()
}

// Use switches the current profile.
func (s *Store) Use(name string) error {
	if _, ok := s.data.Profiles[name]; !ok {
		return ErrProfileNotFound
	}
	s.data.Current = name
	return s.save()
}

// Logout clears the token of the current profile but keeps its base URL.
func (s *Store) Logout() error {
	p, err := s.Current()
	if err != nil {
		return err
	}
	p.Token = ""
	p.Username = ""
	p.ExpiresAt = time.Time{}
	return s.save()
}

// Delete removes a profile.
func (s *Store) Delete(name string) error {
	if _, ok := s.data.Profiles[name]; !ok {
		return ErrProfileNotFound
	}
	delete(s.data.Profiles, name)
	if s.data.Current == name {
		s.data.Current = ""
	}
	return s.save()
}
