package services

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Reserved placeholder tokens. Plans and caches carry these instead of real
// values; they are resolved only at fill time and never logged in plaintext.
const (
	TokenCredentialPassword = "__CREDENTIAL_PASSWORD__"
	TokenResumePath         = "__RESUME_PATH__"
	TokenGenerateCoverText  = "__AI_GENERATE_COVER_LETTER__"
)

// IsReservedToken reports whether a value is one of the fill-time
// placeholders.
func IsReservedToken(value string) bool {
	switch value {
	case TokenCredentialPassword, TokenResumePath, TokenGenerateCoverText:
		return true
	}
	return false
}

// EducationEntry is one education record in the applicant profile.
type EducationEntry struct {
	School         string `json:"school"`
	Degree         string `json:"degree"`
	FieldOfStudy   string `json:"field_of_study"`
	GPA            string `json:"gpa,omitempty"`
	GraduationYear string `json:"graduation_year,omitempty"`
}

// UserProfileData holds everything the resolver can answer from directly.
type UserProfileData struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code,omitempty"`

	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	Country string `json:"country,omitempty"`

	LinkedIn  string `json:"linkedin,omitempty"`
	GitHub    string `json:"github,omitempty"`
	Portfolio string `json:"portfolio,omitempty"`

	CurrentCompany  string `json:"current_company,omitempty"`
	CurrentTitle    string `json:"current_title,omitempty"`
	YearsExperience string `json:"years_experience,omitempty"`

	SalaryExpectation string `json:"salary_expectation,omitempty"`
	NoticePeriod      string `json:"notice_period,omitempty"`

	WorkAuthorized      string `json:"work_authorized,omitempty"`
	RequiresSponsorship string `json:"requires_sponsorship,omitempty"`

	Gender         string `json:"gender,omitempty"`
	Race           string `json:"race,omitempty"`
	VeteranStatus  string `json:"veteran_status,omitempty"`
	DisabilityInfo string `json:"disability_status,omitempty"`

	Education []EducationEntry `json:"education,omitempty"`
	Skills    []string         `json:"skills,omitempty"`

	// SkillYears maps a skill keyword to years of experience with it.
	SkillYears map[string]string `json:"skill_years,omitempty"`

	CoverLetterTemplate string `json:"cover_letter_template,omitempty"`
	ResumePath          string `json:"resume_path,omitempty"`

	// DefaultAnswers maps extra question keywords to canned answers.
	DefaultAnswers map[string]string `json:"default_answers,omitempty"`
}

// FullName joins first and last name.
func (p *UserProfileData) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// LoadProfile reads the applicant profile from a JSON file.
func LoadProfile(path string) (*UserProfileData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}
	profile := &UserProfileData{}
	if err := json.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if profile.Email == "" || profile.FirstName == "" {
		return nil, fmt.Errorf("profile %s missing required first_name/email", path)
	}
	return profile, nil
}

// SiteOverrides holds per-domain question keyword -> answer dictionaries.
// Keys are registrable host suffixes ("boards.greenhouse.io" matches
// "greenhouse.io").
type SiteOverrides struct {
	Sites map[string]map[string]string `yaml:"sites"`
}

// LoadSiteOverrides reads the YAML override file. A missing file is not an
// error; overrides are optional.
func LoadSiteOverrides(path string) (*SiteOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &SiteOverrides{Sites: map[string]map[string]string{}}, nil
		}
		return nil, fmt.Errorf("failed to read site overrides %s: %w", path, err)
	}
	overrides := &SiteOverrides{}
	if err := yaml.Unmarshal(data, overrides); err != nil {
		return nil, fmt.Errorf("failed to parse site overrides %s: %w", path, err)
	}
	if overrides.Sites == nil {
		overrides.Sites = map[string]map[string]string{}
	}
	return overrides, nil
}

// Lookup finds an override for a question on a page URL. The question matches
// when it contains the override keyword, case-insensitively.
func (o *SiteOverrides) Lookup(pageURL, question string) (string, bool) {
	if o == nil || len(o.Sites) == 0 {
		return "", false
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	q := strings.ToLower(question)

	for domain, answers := range o.Sites {
		d := strings.ToLower(domain)
		if host != d && !strings.HasSuffix(host, "."+d) {
			continue
		}
		for keyword, answer := range answers {
			if strings.Contains(q, strings.ToLower(keyword)) {
				return answer, true
			}
		}
	}
	return "", false
}
