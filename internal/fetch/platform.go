package fetch

import (
	"net/url"
	"strings"
)

// Platform is a known applicant tracking system hosting job pages.
type Platform string

const (
	PlatformGreenhouse Platform = "greenhouse"
	PlatformLever      Platform = "lever"
	PlatformWorkday    Platform = "workday"
	PlatformUnknown    Platform = "unknown"
)

var platformHosts = []struct {
	suffix   string
	platform Platform
}{
	{"greenhouse.io", PlatformGreenhouse},
	{"lever.co", PlatformLever},
	{"myworkdayjobs.com", PlatformWorkday},
	{"workday.com", PlatformWorkday},
}

// DetectPlatform identifies the ATS from a posting URL.
func DetectPlatform(urlStr string) Platform {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return PlatformUnknown
	}
	host := strings.ToLower(parsed.Hostname())
	for _, h := range platformHosts {
		if host == h.suffix || strings.HasSuffix(host, "."+h.suffix) {
			return h.platform
		}
	}
	return PlatformUnknown
}

// DescriptionSelectors returns the selectors wrapping a posting description on platform,
// most specific first.
func DescriptionSelectors(platform Platform) []string {
	switch platform {
	case PlatformGreenhouse:
		return []string{".job__description.body", ".job__description", "#content", ".job-post-container"}
	case PlatformLever:
		return []string{".posting-description", ".section-wrapper.page-full-width", ".posting-page"}
	case PlatformWorkday:
		return []string{"[data-automation-id='jobPostingDescription']", "[data-automation-id='jobDescription']", ".job-description"}
	default:
		return JobPostingSelectors()
	}
}

// NoiseSelectors returns elements to strip from a posting page before extracting text:
// application forms, EEO boilerplate and share widgets.
func NoiseSelectors(platform Platform) []string {
	common := []string{
		"form",
		"#application-form",
		".application-form",
		".apply-button-container",
		".eeo-statement",
		".voluntary-disclosure",
		".social-share",
		".cookie-consent",
	}
	switch platform {
	case PlatformGreenhouse:
		return append(common, ".application--wrapper", "#usa_self_id_section", ".post-apply")
	case PlatformLever:
		return append(common, ".apply-section", ".posting-apply")
	case PlatformWorkday:
		return append(common, "[data-automation-id='applyButton']")
	default:
		return common
	}
}

// PostingText extracts the description of a posting page, picking selectors by the URL's platform.
func PostingText(pageURL, html string) (string, error) {
	platform := DetectPlatform(pageURL)
	return ExtractMainText(html, DescriptionSelectors(platform), NoiseSelectors(platform)...)
}
