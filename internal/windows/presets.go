package windows

import "devsetup/internal/config"

const (
	hkcuExplorer = `HKCU:\Software\Microsoft\Windows\CurrentVersion\Explorer\Advanced`
	hkcuThemes   = `HKCU:\Software\Microsoft\Windows\CurrentVersion\Themes\Personalize`
)

// presets are the built-in registry groups selectable by name in the config.
var presets = map[string][]config.RegistryTweak{
	"explorer": {
		{Path: hkcuExplorer, Name: "HideFileExt", Type: "DWord", Value: "0"},
		{Path: hkcuExplorer, Name: "Hidden", Type: "DWord", Value: "1"},
		{Path: hkcuExplorer, Name: "LaunchTo", Type: "DWord", Value: "1"},
		{Path: `HKCU:\Software\Microsoft\Windows\CurrentVersion\Explorer\CabinetState`, Name: "FullPath", Type: "DWord", Value: "1"},
	},
	"dark_mode": {
		{Path: hkcuThemes, Name: "AppsUseLightTheme", Type: "DWord", Value: "0"},
		{Path: hkcuThemes, Name: "SystemUsesLightTheme", Type: "DWord", Value: "0"},
	},
	"privacy": {
		{Path: `HKCU:\Software\Microsoft\Windows\CurrentVersion\AdvertisingInfo`, Name: "Enabled", Type: "DWord", Value: "0"},
		{Path: `HKLM:\SOFTWARE\Policies\Microsoft\Windows\DataCollection`, Name: "AllowTelemetry", Type: "DWord", Value: "0"},
		{Path: `HKCU:\Software\Microsoft\Windows\CurrentVersion\Search`, Name: "BingSearchEnabled", Type: "DWord", Value: "0"},
		{Path: `HKCU:\Software\Microsoft\Windows\CurrentVersion\ContentDeliveryManager`, Name: "SilentInstalledAppsEnabled", Type: "DWord", Value: "0"},
	},
	"performance": {
		{Path: `HKCU:\Control Panel\Desktop`, Name: "MenuShowDelay", Type: "String", Value: "100"},
		{Path: `HKCU:\Software\Microsoft\Windows\CurrentVersion\Explorer\VisualEffects`, Name: "VisualFXSetting", Type: "DWord", Value: "2"},
		{Path: `HKLM:\SYSTEM\CurrentControlSet\Control\Session Manager\Power`, Name: "HiberbootEnabled", Type: "DWord", Value: "0"},
	},
}

// PresetNames lists the built-in groups in a stable order.
func PresetNames() []string {
	return []string{"explorer", "dark_mode", "privacy", "performance"}
}
