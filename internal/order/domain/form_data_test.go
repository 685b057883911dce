package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormDataValidate(t *testing.T) {
	cv := &CVForm{FullName: "Jane Doe", TargetRole: "Backend Engineer"}
	letter := &CoverLetterForm{Company: "Acme", Position: "SRE"}

	tests := []struct {
		name string
		kind ProductKind
		form FormData
		want error
	}{
		{"cv ok", ProductCV, FormData{CV: cv}, nil},
		{"letter ok", ProductCoverLetter, FormData{CoverLetter: letter}, nil},
		{"bundle ok", ProductBundle, FormData{CV: cv, CoverLetter: letter}, nil},
		{"bundle missing letter", ProductBundle, FormData{CV: cv}, ErrInvalidFormData},
		{"cv with extra letter", ProductCV, FormData{CV: cv, CoverLetter: letter}, ErrInvalidFormData},
		{"cv missing role", ProductCV, FormData{CV: &CVForm{FullName: "Jane"}}, ErrInvalidFormData},
		{"letter missing company", ProductCoverLetter, FormData{CoverLetter: &CoverLetterForm{Position: "SRE"}}, ErrInvalidFormData},
		{"kind mismatch", ProductCV, FormData{Kind: ProductCoverLetter, CV: cv}, ErrFormKindMismatch},
		{"empty", ProductCV, FormData{}, ErrInvalidFormData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.form.Validate(tt.kind)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFormDataEncodeSetsKind(t *testing.T) {
	blob, err := FormData{CV: &CVForm{FullName: "Jane", TargetRole: "PM"}}.Encode(ProductCV)
	require.NoError(t, err)

	var decoded FormData
	require.NoError(t, json.Unmarshal(blob, &decoded))
	assert.Equal(t, ProductCV, decoded.Kind)
	assert.Equal(t, "PM", decoded.CV.TargetRole)
	assert.Nil(t, decoded.CoverLetter)
}
