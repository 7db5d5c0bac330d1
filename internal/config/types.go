package config

// Config is the typed configuration every module receives explicitly.
// It is loaded from devsetup.yaml (or .toml), optionally overlaid with legacy
// KEY="value" .conf files, and completed with defaults.
type Config struct {
	LogFile       string `yaml:"log_file"`
	StateFile     string `yaml:"state_file"`
	LegacyConfDir string `yaml:"legacy_conf_dir"`
	PackagesFile  string `yaml:"packages_file"`

	Installer Installer `yaml:"installer"`
	Packages  Packages  `yaml:"packages"`
	Dotfiles  Dotfiles  `yaml:"dotfiles"`
	Downloads Downloads `yaml:"downloads"`
	Backup    Backup    `yaml:"backup"`
	Tasks     Tasks     `yaml:"tasks"`
	Windows   Windows   `yaml:"windows"`
	Workspace Workspace `yaml:"workspace"`
}

// Installer controls how package-manager steps are executed.
// - Retries/RetryDelaySeconds: bounded retry for network-bound commands.
// - ConnectivityHost: pinged once before any install step.
// - BinDir: where binaries from GitHub releases are placed.
// - Parallel: concurrent GitHub downloads.
type Installer struct {
	Retries           int    `yaml:"retries"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
	ConnectivityHost  string `yaml:"connectivity_host"`
	UseSudo           *bool  `yaml:"use_sudo"`
	BinDir            string `yaml:"bin_dir"`
	Parallel          int    `yaml:"parallel"`
}

// Sudo reports whether system package managers run through sudo (default true).
func (i Installer) Sudo() bool {
	return i.UseSudo == nil || *i.UseSudo
}

// Packages is the declarative manifest of everything the installer manages.
type Packages struct {
	Apt    []string `yaml:"apt"`
	Pip    []string `yaml:"pip"`
	Npm    []string `yaml:"npm"`
	Brew   []string `yaml:"brew"`
	Winget []string `yaml:"winget"`
	Tools  []Tool   `yaml:"tools"`
}

// Tool is a binary fetched from a GitHub release or a direct URL.
// - Source: "github" or "url".
// - Repo/Tag: GitHub coordinates; Repo defaults to Name and Tag to "v"+Version.
type Tool struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Source  string `yaml:"source"`
	URL     string `yaml:"url"`
	Repo    string `yaml:"repo"`
	Tag     string `yaml:"tag"`
}

// Dotfiles configures the git-backed dotfile copy.
type Dotfiles struct {
	Repo   string   `yaml:"repo"`
	Remote string   `yaml:"remote"`
	Files  []string `yaml:"files"`
	Push   bool     `yaml:"push"`
	Pull   bool     `yaml:"pull"`
}

// Downloads configures the downloads organizer.
// Categories maps a subfolder name to the extensions moved into it.
type Downloads struct {
	Dir            string              `yaml:"dir"`
	Categories     map[string][]string `yaml:"categories"`
	MoveUnknown    bool                `yaml:"move_unknown"`
	DebounceMillis int                 `yaml:"debounce_millis"`
}

// Backup configures the archive engine.
// Password is stored in plaintext when set; leaving it empty prompts instead.
type Backup struct {
	Dest          string   `yaml:"dest"`
	Sources       []string `yaml:"sources"`
	ConfigFiles   []string `yaml:"config_files"`
	RetentionDays int      `yaml:"retention_days"`
	Encrypt       bool     `yaml:"encrypt"`
	Password      string   `yaml:"password"`
	Schedule      string   `yaml:"schedule"`
}

// Tasks configures the academic task tracker.
// Backend is "csv" (default) or "sqlite".
type Tasks struct {
	Backend    string `yaml:"backend"`
	File       string `yaml:"file"`
	Database   string `yaml:"database"`
	FolderRoot string `yaml:"folder_root"`
}

// Windows configures the PowerShell generators.
type Windows struct {
	OutputDir string          `yaml:"output_dir"`
	Presets   []string        `yaml:"presets"`
	Registry  []RegistryTweak `yaml:"registry"`
	WSL       WSLConfig       `yaml:"wsl"`
}

// RegistryTweak is a single registry value written by the generated script.
// Type is one of DWord, QWord, String, ExpandString.
type RegistryTweak struct {
	Path  string `yaml:"path"`
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// WSLConfig holds the [wsl2] values written to %UserProfile%\.wslconfig.
type WSLConfig struct {
	Memory     string `yaml:"memory"`
	Processors int    `yaml:"processors"`
	Swap       string `yaml:"swap"`
}

// Workspace configures the AI workspace scaffold.
type Workspace struct {
	Root                string   `yaml:"root"`
	Python              string   `yaml:"python"`
	Requirements        []string `yaml:"requirements"`
	InstallRequirements bool     `yaml:"install_requirements"`
}
