package config

// Default config values. Paths are "~"-relative and expanded after loading.
const (
	defaultRetries          = 3
	defaultRetryDelay       = 5
	defaultConnectivityHost = "8.8.8.8"
	defaultParallel         = 4
	defaultRetentionDays    = 30
	defaultDebounceMillis   = 750
)

// DefaultCategories is the extension map used when the config defines none.
var DefaultCategories = map[string][]string{
	"Documents":  {".pdf", ".doc", ".docx", ".odt", ".txt", ".md", ".rtf", ".epub"},
	"Sheets":     {".xls", ".xlsx", ".ods", ".csv"},
	"Slides":     {".ppt", ".pptx", ".odp", ".key"},
	"Images":     {".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".heic"},
	"Audio":      {".mp3", ".wav", ".flac", ".ogg", ".m4a"},
	"Video":      {".mp4", ".mkv", ".mov", ".avi", ".webm"},
	"Archives":   {".zip", ".tar", ".tar.gz", ".tgz", ".tar.xz", ".7z", ".rar", ".gz"},
	"Installers": {".deb", ".rpm", ".appimage", ".exe", ".msi", ".dmg", ".pkg"},
	"Code":       {".py", ".ipynb", ".go", ".js", ".ts", ".java", ".c", ".cpp", ".sh", ".json", ".yaml", ".yml"},
}

// Default returns the configuration used when no file exists.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	expandPaths(&cfg)
	return cfg
}

// applyDefaults fills every empty field with its default value.
func applyDefaults(cfg *Config) {
	setString(&cfg.LogFile, "~/.local/state/devsetup/devsetup.log")
	setString(&cfg.StateFile, "~/.local/state/devsetup/state.json")

	in := &cfg.Installer
	setInt(&in.Retries, defaultRetries)
	setInt(&in.RetryDelaySeconds, defaultRetryDelay)
	setString(&in.ConnectivityHost, defaultConnectivityHost)
	setString(&in.BinDir, "~/.local/bin")
	setInt(&in.Parallel, defaultParallel)

	df := &cfg.Dotfiles
	setString(&df.Repo, "~/dotfiles")
	if len(df.Files) == 0 {
		df.Files = []string{".bashrc", ".zshrc", ".gitconfig", ".vimrc", ".tmux.conf"}
	}

	dl := &cfg.Downloads
	setString(&dl.Dir, "~/Downloads")
	if len(dl.Categories) == 0 {
		dl.Categories = DefaultCategories
	}
	setInt(&dl.DebounceMillis, defaultDebounceMillis)

	bk := &cfg.Backup
	setString(&bk.Dest, "~/Backups")
	if len(bk.Sources) == 0 {
		bk.Sources = []string{"~/Documents", "~/Projects"}
	}
	if len(bk.ConfigFiles) == 0 {
		bk.ConfigFiles = []string{".bashrc", ".zshrc", ".gitconfig", ".ssh/config", ".config/devsetup"}
	}
	setInt(&bk.RetentionDays, defaultRetentionDays)
	setString(&bk.Schedule, "0 2 * * *")

	tk := &cfg.Tasks
	setString(&tk.Backend, "csv")
	setString(&tk.File, "~/.local/share/devsetup/academic/tasks.csv")
	setString(&tk.Database, "~/.local/share/devsetup/academic/tasks.db")
	setString(&tk.FolderRoot, "~/Uni")

	win := &cfg.Windows
	setString(&win.OutputDir, "~/windows-setup")
	if win.Presets == nil {
		win.Presets = []string{"explorer"}
	}

	ws := &cfg.Workspace
	setString(&ws.Root, "~/ai-workspace")
	setString(&ws.Python, "python3")
	if len(ws.Requirements) == 0 {
		ws.Requirements = []string{"numpy", "pandas", "matplotlib", "scikit-learn", "jupyterlab"}
	}
}

// expandPaths resolves "~" in every path-valued field.
func expandPaths(cfg *Config) {
	for _, p := range []*string{
		&cfg.LogFile, &cfg.StateFile, &cfg.LegacyConfDir,
		&cfg.Installer.BinDir,
		&cfg.Dotfiles.Repo,
		&cfg.Downloads.Dir,
		&cfg.Backup.Dest,
		&cfg.Tasks.File, &cfg.Tasks.Database, &cfg.Tasks.FolderRoot,
		&cfg.Windows.OutputDir,
		&cfg.Workspace.Root,
	} {
		*p = ExpandHome(*p)
	}
	for i, s := range cfg.Backup.Sources {
		cfg.Backup.Sources[i] = ExpandHome(s)
	}
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}
