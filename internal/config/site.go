package config

import (
	"maps"
	"strings"
	"time"
)

// SiteConfig holds settings for one website host.
type SiteConfig struct {
	// Cookie is sent with every request to the site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers sent to the site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// IgnorePatterns are glob patterns on the URL path of assets to skip.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns, when set, restrict assets to matching URL paths.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// Pages are the default page paths to scrape.
	Pages []string `yaml:"pages,omitempty"`

	// HydrationWait overrides the default wait after page load, e.g. "5s".
	HydrationWait time.Duration `yaml:"hydrationWait,omitempty"`
}

// File represents the structure of the .pagemirror configuration file.
type File struct {
	// Website is the default website base URL.
	Website string `yaml:"website,omitempty"`

	// Sites maps hosts (e.g. "site.test") to their settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the settings for host merged over the defaults.
// Host lookup is case-insensitive.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	siteConfig, ok := cf.Sites[host]
	if !ok {
		for k, v := range cf.Sites {
			if strings.EqualFold(k, host) {
				siteConfig, ok = v, true
				break
			}
		}
	}
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(siteConfig.Headers))
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	if len(siteConfig.Pages) > 0 {
		result.Pages = siteConfig.Pages
	}
	if siteConfig.HydrationWait > 0 {
		result.HydrationWait = siteConfig.HydrationWait
	}
	return result
}
