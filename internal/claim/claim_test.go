package claim

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		hints   Hints
		wantErr error
	}{
		{name: "empty", text: "", wantErr: ErrEmpty},
		{name: "whitespace_only", text: "   \t\n", wantErr: ErrEmpty},
		{name: "too_long", text: strings.Repeat("a", MaxLength+1), wantErr: ErrTooLong},
		{name: "at_cap", text: strings.Repeat("a", MaxLength)},
		{name: "bad_domain_hint", text: "water is wet", hints: Hints{DomainOverride: "sports"}, wantErr: ErrBadHint},
		{name: "valid_hint", text: "water is wet", hints: Hints{DomainOverride: DomainScience}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.text, tt.hints)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, c.ID)
			assert.NotEmpty(t, c.Normalized)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "water boils at 100°c", Normalize("  Water   BOILS at\t100°C  "))
	assert.Equal(t, Normalize("Hello World"), Normalize("hello    world"))
}

func TestDomainInference(t *testing.T) {
	tests := []struct {
		text string
		want Domain
	}{
		{"Vaccines cause autism.", DomainHealth},
		{"The Riemann hypothesis has been proved.", DomainScience},
		{"BREAKING: Event X happened today.", DomainNews},
		{"The new API release supports encryption.", DomainTech},
		{"Capital of Poland is Warsaw.", DomainGeneral},
	}
	for _, tt := range tests {
		c, err := New(tt.text, Hints{})
		require.NoError(t, err)
		assert.Equal(t, tt.want, c.Domain, "text %q", tt.text)
	}
}

func TestDomainOverrideWins(t *testing.T) {
	c, err := New("Vaccines cause autism.", Hints{DomainOverride: DomainNews})
	require.NoError(t, err)
	assert.Equal(t, DomainNews, c.Domain)
}

func TestComplexityInference(t *testing.T) {
	simple, err := New("Capital of Poland is Warsaw.", Hints{})
	require.NoError(t, err)
	assert.Equal(t, ComplexitySimple, simple.Complexity)

	complexClaim, err := New(
		"Rising CO2 levels, because they trap infrared radiation, therefore cause warming, "+
			"which leads to feedback loops that, unless mitigated, amplify the initial effect across decades.",
		Hints{})
	require.NoError(t, err)
	assert.Equal(t, ComplexityComplex, complexClaim.Complexity)
}

func TestUrgencyDefault(t *testing.T) {
	c, err := New("something happened", Hints{})
	require.NoError(t, err)
	assert.Equal(t, UrgencyNormal, c.Hints.Urgency)
}
