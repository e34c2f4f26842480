package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Storage backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendDrive = "drive"
	BackendGist  = "gist"
)

// Voice maps one speaker role to a synthesis voice and a persona for the script prompt.
type Voice struct {
	Role    string `toml:"role"`
	Voice   string `toml:"voice"`
	Persona string `toml:"persona"`
}

// Storage describes where episode audio files are uploaded.
type Storage struct {
	Backend         string `toml:"backend"`
	Dir             string `toml:"dir"`
	PublicBaseURL   string `toml:"public_base_url"`
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	Region          string `toml:"region"`
	Profile         string `toml:"profile"`
	UsePathStyle    bool   `toml:"use_path_style"`
	FolderID        string `toml:"folder_id"`
	CredentialsFile string `toml:"credentials_file"`
}

// FeedHost describes where the show's published feed document lives.
type FeedHost struct {
	Backend         string `toml:"backend"`
	Path            string `toml:"path"`
	Bucket          string `toml:"bucket"`
	Key             string `toml:"key"`
	Region          string `toml:"region"`
	Profile         string `toml:"profile"`
	UsePathStyle    bool   `toml:"use_path_style"`
	FileID          string `toml:"file_id"`
	CredentialsFile string `toml:"credentials_file"`
	GistID          string `toml:"gist_id"`
	Filename        string `toml:"filename"`
	Token           string `toml:"token"`
	APIBaseURL      string `toml:"api_base_url"`
}

// Enabled reports whether a feed host is configured. Only the optional
// mirror may be left unset.
func (fh FeedHost) Enabled() bool {
	return strings.TrimSpace(fh.Backend) != ""
}

// GenerationOverride replaces global generation settings for one show. Zero
// values inherit the global setting.
type GenerationOverride struct {
	Model               string `toml:"model"`
	MaxTokens           int    `toml:"max_tokens"`
	TargetLengthMinutes int    `toml:"target_length_minutes"`
	MaxArticleChars     int    `toml:"max_article_chars"`
}

// SpeechOverride replaces global speech settings for one show.
type SpeechOverride struct {
	Model string `toml:"model"`
}

// Podcast holds channel-level metadata written into the feed document.
type Podcast struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
	Link        string `toml:"link"`
	Author      string `toml:"author"`
	Email       string `toml:"email"`
	Language    string `toml:"language"`
	Explicit    bool   `toml:"explicit"`
	Image       string `toml:"image"`
}

// Show is one independently configured podcast.
type Show struct {
	ID            string             `toml:"id"`
	Name          string             `toml:"name"`
	Description   string             `toml:"description"`
	Feeds         []string           `toml:"feeds"`
	IntroTemplate string             `toml:"intro_template"`
	IntroRole     string             `toml:"intro_role"`
	IntroAudio    string             `toml:"intro_audio"`
	Voices        []Voice            `toml:"voices"`
	Storage       Storage            `toml:"storage"`
	Feed          FeedHost           `toml:"feed"`
	Mirror        FeedHost           `toml:"mirror"`
	Generation    GenerationOverride `toml:"generation"`
	Speech        SpeechOverride     `toml:"speech"`
	Podcast       Podcast            `toml:"podcast"`
}

// DisplayName returns the show name, falling back to its id.
func (s Show) DisplayName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return s.ID
}

// Roles returns the configured speaker roles in declaration order.
func (s Show) Roles() []string {
	roles := make([]string, 0, len(s.Voices))
	for _, v := range s.Voices {
		roles = append(roles, v.Role)
	}
	return roles
}

// Voice returns the voice configured for role.
func (s Show) Voice(role string) (Voice, bool) {
	for _, v := range s.Voices {
		if v.Role == role {
			return v, true
		}
	}
	return Voice{}, false
}

// IntroSpeaker returns the role that reads the intro.
func (s Show) IntroSpeaker() string {
	if role := strings.TrimSpace(s.IntroRole); role != "" {
		return role
	}
	if len(s.Voices) > 0 {
		return s.Voices[0].Role
	}
	return ""
}

// Validate checks the settings a show needs before any item is processed.
func (s Show) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("shows.id must be set")
	}
	prefix := fmt.Sprintf("shows[%s]", s.ID)
	if len(s.Voices) < 2 {
		return fmt.Errorf("%s.voices must define at least two speaker roles", prefix)
	}
	seen := make(map[string]struct{}, len(s.Voices))
	for _, v := range s.Voices {
		if !validRoleToken(v.Role) {
			return fmt.Errorf("%s.voices.role %q must be an upper-case token such as HOST_A", prefix, v.Role)
		}
		if _, dup := seen[v.Role]; dup {
			return fmt.Errorf("%s.voices.role %q is defined twice", prefix, v.Role)
		}
		seen[v.Role] = struct{}{}
		if strings.TrimSpace(v.Voice) == "" {
			return fmt.Errorf("%s.voices[%s].voice must be set", prefix, v.Role)
		}
	}
	if role := s.IntroSpeaker(); s.IntroAudio == "" {
		if _, ok := seen[role]; !ok {
			return fmt.Errorf("%s.intro_role %q is not a configured voice role", prefix, role)
		}
	}
	if err := s.validateStorage(prefix); err != nil {
		return err
	}
	if err := validateFeedHost(prefix+".feed", s.Feed); err != nil {
		return err
	}
	if s.Mirror.Enabled() {
		if err := validateFeedHost(prefix+".mirror", s.Mirror); err != nil {
			return err
		}
	}
	g := s.Generation
	if g.MaxTokens < 0 || g.TargetLengthMinutes < 0 || g.MaxArticleChars < 0 {
		return fmt.Errorf("%s.generation limits must be non-negative", prefix)
	}
	return nil
}

func (s Show) validateStorage(prefix string) error {
	st := s.Storage
	switch st.Backend {
	case BackendLocal:
		if st.Dir == "" {
			return fmt.Errorf("%s.storage.dir must be set for the local backend", prefix)
		}
		if st.PublicBaseURL == "" {
			return fmt.Errorf("%s.storage.public_base_url must be set for the local backend", prefix)
		}
		if _, err := url.Parse(st.PublicBaseURL); err != nil {
			return fmt.Errorf("%s.storage.public_base_url: %w", prefix, err)
		}
	case BackendS3:
		if st.Bucket == "" {
			return fmt.Errorf("%s.storage.bucket must be set for the s3 backend", prefix)
		}
	case BackendDrive:
		if st.CredentialsFile == "" {
			return fmt.Errorf("%s.storage.credentials_file must be set for the drive backend (or GOOGLE_APPLICATION_CREDENTIALS)", prefix)
		}
	default:
		return fmt.Errorf("%s.storage.backend must be one of local, s3, drive (got %q)", prefix, st.Backend)
	}
	return nil
}

func validateFeedHost(prefix string, fh FeedHost) error {
	switch fh.Backend {
	case BackendLocal:
		if fh.Path == "" {
			return fmt.Errorf("%s.path must be set for the local backend", prefix)
		}
	case BackendS3:
		if fh.Bucket == "" || fh.Key == "" {
			return fmt.Errorf("%s.bucket and %s.key must be set for the s3 backend", prefix, prefix)
		}
	case BackendDrive:
		if fh.FileID == "" {
			return fmt.Errorf("%s.file_id must be set for the drive backend", prefix)
		}
		if fh.CredentialsFile == "" {
			return fmt.Errorf("%s.credentials_file must be set for the drive backend (or GOOGLE_APPLICATION_CREDENTIALS)", prefix)
		}
	case BackendGist:
		if fh.GistID == "" {
			return fmt.Errorf("%s.gist_id must be set for the gist backend", prefix)
		}
		if fh.Token == "" {
			return fmt.Errorf("%s.token must be set for the gist backend (or GITHUB_TOKEN)", prefix)
		}
	default:
		return fmt.Errorf("%s.backend must be one of local, s3, drive, gist (got %q)", prefix, fh.Backend)
	}
	return nil
}

func validRoleToken(role string) bool {
	if role == "" {
		return false
	}
	for _, r := range role {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

// ForShow returns a copy of c with the show's generation and speech
// overrides applied. c is not modified.
func (c *Config) ForShow(show Show) *Config {
	out := *c
	g := show.Generation
	if model := strings.TrimSpace(g.Model); model != "" {
		out.Generation.Model = model
	}
	if g.MaxTokens > 0 {
		out.Generation.MaxTokens = g.MaxTokens
	}
	if g.TargetLengthMinutes > 0 {
		out.Generation.TargetLengthMinutes = g.TargetLengthMinutes
	}
	if g.MaxArticleChars > 0 {
		out.Generation.MaxArticleChars = g.MaxArticleChars
	}
	if model := strings.TrimSpace(show.Speech.Model); model != "" {
		out.Speech.Model = model
	}
	return &out
}
