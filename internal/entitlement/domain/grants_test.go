package domain

import (
	"testing"

	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGrants(t *testing.T) {
	grants, err := NewGrants(map[string]map[string]int64{
		"bundle": {"cv": 1, "cover_letter": 2},
		"CV":     {"cv": 1},
	})
	require.NoError(t, err)

	assert.Equal(t, []Credit{{Kind: KindCoverLetter, Units: 2}, {Kind: KindCV, Units: 1}}, grants.For(orderdomain.ProductBundle))
	assert.Equal(t, []Credit{{Kind: KindCV, Units: 1}}, grants.For(orderdomain.ProductCV))
	assert.Empty(t, grants.For(orderdomain.ProductCoverLetter))
}

func TestNewGrantsEmpty(t *testing.T) {
	grants, err := NewGrants(nil)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestNewGrantsRejectsInvalid(t *testing.T) {
	for name, table := range map[string]map[string]map[string]int64{
		"unknown product":       {"poster": {"cv": 1}},
		"unknown entitlement":   {"cv": {"portfolio": 1}},
		"zero units":            {"cv": {"cv": 0}},
		"negative units":        {"cv": {"cv": -2}},
		"product twice by case": {"cv": {"cv": 1}, "CV": {"cover_letter": 1}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewGrants(table)
			assert.ErrorIs(t, err, ErrInvalidGrantConfig)
		})
	}
}

func TestStaticGrants(t *testing.T) {
	want := Grants{orderdomain.ProductCV: {KindCV: 1}}
	got, err := StaticGrants(want).Grants()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
