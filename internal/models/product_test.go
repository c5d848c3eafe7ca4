package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyClassificationVisibility(t *testing.T) {
	t.Run("nicotine hides with the default reason", func(t *testing.T) {
		p := Product{VisibleOnMainSite: true}
		p.ApplyClassificationVisibility(true, nil)
		assert.True(t, p.NicotineProduct)
		assert.False(t, p.VisibleOnMainSite)
		require.NotNil(t, p.HiddenReason)
		assert.Equal(t, NicotineHiddenReason, *p.HiddenReason)
	})

	t.Run("visible product records the reason and stays visible", func(t *testing.T) {
		p := Product{VisibleOnMainSite: true}
		p.ApplyClassificationVisibility(false, StringPtr("Pending age-gate review"))
		assert.True(t, p.VisibleOnMainSite)
		require.NotNil(t, p.HiddenReason)
		assert.Equal(t, "Pending age-gate review", *p.HiddenReason)
	})

	t.Run("hidden product is never revealed", func(t *testing.T) {
		p := Product{VisibleOnMainSite: false, HiddenReason: StringPtr("manual hold")}
		p.ApplyClassificationVisibility(false, nil)
		assert.False(t, p.VisibleOnMainSite)
		assert.Equal(t, "manual hold", *p.HiddenReason)
	})

	t.Run("empty reason changes nothing", func(t *testing.T) {
		p := Product{VisibleOnMainSite: true}
		p.ApplyClassificationVisibility(false, StringPtr(""))
		assert.True(t, p.VisibleOnMainSite)
		assert.Nil(t, p.HiddenReason)
	})
}

func TestRevealRefusesNicotine(t *testing.T) {
	p := Product{NicotineProduct: true}
	p.Hide(NicotineHiddenReason)
	assert.False(t, p.Reveal())
	assert.False(t, p.VisibleOnMainSite)

	p.NicotineProduct = false
	assert.True(t, p.Reveal())
	assert.True(t, p.VisibleOnMainSite)
	assert.Nil(t, p.HiddenReason)
}
