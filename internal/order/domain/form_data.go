package domain

import (
	"encoding/json"
	"strings"
)

// FormData is the post-payment questionnaire. Exactly the sections that the
// product kind calls for must be present: cv needs CV, cover_letter needs
// CoverLetter, bundle needs both.
type FormData struct {
	Kind        ProductKind      `json:"kind"`
	CV          *CVForm          `json:"cv,omitempty"`
	CoverLetter *CoverLetterForm `json:"cover_letter,omitempty"`
}

type CVForm struct {
	FullName       string   `json:"full_name"`
	TargetRole     string   `json:"target_role"`
	Summary        string   `json:"summary,omitempty"`
	Experience     []string `json:"experience,omitempty"`
	Education      []string `json:"education,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	Languages      []string `json:"languages,omitempty"`
	PreferredStyle string   `json:"preferred_style,omitempty"`
}

type CoverLetterForm struct {
	Company        string `json:"company"`
	Position       string `json:"position"`
	HiringManager  string `json:"hiring_manager,omitempty"`
	JobDescription string `json:"job_description,omitempty"`
	Motivation     string `json:"motivation,omitempty"`
	Tone           string `json:"tone,omitempty"`
}

// Validate checks the union against the order's product kind.
func (f FormData) Validate(kind ProductKind) error {
	if f.Kind != "" && f.Kind != kind {
		return ErrFormKindMismatch
	}

	needCV := kind == ProductCV || kind == ProductBundle
	needLetter := kind == ProductCoverLetter || kind == ProductBundle

	if needCV != (f.CV != nil) || needLetter != (f.CoverLetter != nil) {
		return ErrInvalidFormData
	}
	if f.CV != nil {
		if strings.TrimSpace(f.CV.FullName) == "" || strings.TrimSpace(f.CV.TargetRole) == "" {
			return ErrInvalidFormData
		}
	}
	if f.CoverLetter != nil {
		if strings.TrimSpace(f.CoverLetter.Company) == "" || strings.TrimSpace(f.CoverLetter.Position) == "" {
			return ErrInvalidFormData
		}
	}
	return nil
}

// Encode validates the form for kind and returns its JSON blob with the
// kind set.
func (f FormData) Encode(kind ProductKind) ([]byte, error) {
	if err := f.Validate(kind); err != nil {
		return nil, err
	}
	f.Kind = kind
	return json.Marshal(f)
}
