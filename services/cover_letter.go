package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	"baliance.com/gooxml/document"
)

// CoverLetterService produces cover letter text for a specific job, either
// from the profile template or via the AI completer. It satisfies
// CoverTextWriter.
type CoverLetterService struct {
	profile   *UserProfileData
	completer TextCompleter
}

func NewCoverLetterService(profile *UserProfileData, completer TextCompleter) *CoverLetterService {
	return &CoverLetterService{profile: profile, completer: completer}
}

const coverLetterPrompt = `Write a short cover letter (3 paragraphs, under 250 words) for this job application.

Candidate:
Name: %s
Current role: %s at %s
Years of experience: %s
Skills: %s

Job:
%s

Write in first person, plain professional tone, no placeholders or brackets.
Return only the letter body, no salutation header block.`

// GenerateText returns cover letter text for the job. A configured template
// wins; otherwise the completer writes one. With neither, a minimal letter is
// assembled from the profile so the field is never left blank.
func (s *CoverLetterService) GenerateText(jobContext string) (string, error) {
	if s.profile.CoverLetterTemplate != "" {
		return s.profile.CoverLetterTemplate, nil
	}

	if s.completer != nil {
		prompt := fmt.Sprintf(coverLetterPrompt,
			s.profile.FullName(), s.profile.CurrentTitle, s.profile.CurrentCompany,
			s.profile.YearsExperience, strings.Join(s.profile.Skills, ", "), jobContext)
		text, err := s.completer.Complete(prompt, 512, 30*time.Second)
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text), nil
		}
		log.Printf("AI cover letter generation failed, using fallback: %v", err)
	}

	return fmt.Sprintf(
		"I am excited to apply for this role. As a %s with %s years of experience, I believe my background in %s makes me a strong fit.\n\nThank you for your consideration.\n\n%s",
		s.profile.CurrentTitle, s.profile.YearsExperience,
		strings.Join(s.profile.Skills, ", "), s.profile.FullName()), nil
}

// WriteDocx renders cover letter text as a .docx for forms that want an
// uploaded letter instead of a textarea.
func (s *CoverLetterService) WriteDocx(text, path string) error {
	doc := document.New()
	for _, para := range strings.Split(text, "\n\n") {
		doc.AddParagraph().AddRun().AddText(strings.TrimSpace(para))
	}
	if err := doc.SaveToFile(path); err != nil {
		return fmt.Errorf("failed to write cover letter docx: %w", err)
	}
	return nil
}
