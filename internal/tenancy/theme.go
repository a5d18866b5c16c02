package tenancy

const (
	DefaultPrimaryColor   = "#3b82f6"
	DefaultSecondaryColor = "#1e40af"
	DefaultAccentColor    = "#06b6d4"
	DefaultCompanyName    = "CamGuard"
)

// Theme is a declarative description of how to render a tenant's branding.
type Theme struct {
	Variables   map[string]string `json:"variables"`
	CompanyName string            `json:"company_name"`
	LogoURL     string            `json:"logo_url,omitempty"`
	FaviconURL  string            `json:"favicon_url,omitempty"`
	CustomCSS   string            `json:"custom_css,omitempty"`
}

// ThemeFor derives the theme for b, falling back to the platform defaults
// for anything unset. A nil b yields the platform theme.
func ThemeFor(b *Branding) Theme {
	t := Theme{
		Variables: map[string]string{
			"--primary":   DefaultPrimaryColor,
			"--secondary": DefaultSecondaryColor,
			"--accent":    DefaultAccentColor,
		},
		CompanyName: DefaultCompanyName,
	}
	if b == nil {
		return t
	}
	if b.PrimaryColor != "" {
		t.Variables["--primary"] = b.PrimaryColor
	}
	if b.SecondaryColor != "" {
		t.Variables["--secondary"] = b.SecondaryColor
	}
	if b.AccentColor != "" {
		t.Variables["--accent"] = b.AccentColor
	}
	if b.CompanyName != "" {
		t.CompanyName = b.CompanyName
	}
	t.LogoURL = b.LogoURL
	t.FaviconURL = b.FaviconURL
	t.CustomCSS = b.CustomCSS
	return t
}
