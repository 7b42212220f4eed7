package config

const (
	LightTheme string = "light"
	DarkTheme  string = "dark"

	LightThemeIcon string = `<i class="fas fa-sun"></i>`
	DarkThemeIcon  string = `<i class="fas fa-moon"></i>`

	DefaultDarkSyntaxTheme  string = "gruvbox"
	DefaultLightSyntaxTheme string = "catppuccin-latte"

	DefaultTheme string = DarkTheme
)
