package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const profileFileName = ".nexflow.yaml"

// Profile holds saved connection settings.
type Profile struct {
	APIURL    string `yaml:"api_url"`
	Token     string `yaml:"token"`
	PageSize  int    `yaml:"page_size"`
	EventsURL string `yaml:"events_url"`
}

// LoadProfile reads a profile file. A missing file yields an empty profile.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	return p, nil
}

func defaultProfilePath() string {
	if p := os.Getenv("NEXFLOW_PROFILE"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return profileFileName
	}
	return filepath.Join(home, profileFileName)
}

// resolve merges the profile with flags and the environment. Flags win.
func (f *globalFlags) resolve() (Profile, error) {
	path := f.profilePath
	if path == "" {
		path = defaultProfilePath()
	}
	p, err := LoadProfile(path)
	if err != nil {
		return p, err
	}
	if tok := os.Getenv("NEXFLOW_TOKEN"); tok != "" {
		p.Token = tok
	}
	if f.apiURL != "" {
		p.APIURL = f.apiURL
	}
	if f.token != "" {
		p.Token = f.token
	}
	if f.pageSize > 0 {
		p.PageSize = f.pageSize
	}
	p.Token = strings.TrimPrefix(strings.TrimSpace(p.Token), "Bearer ")

	if p.APIURL == "" {
		return p, errors.New("no ticket API URL: set api_url in the profile or pass --api-url")
	}
	if p.Token == "" {
		return p, errors.New("no token: set token in the profile, NEXFLOW_TOKEN or --token")
	}
	return p, nil
}
