package rule

import (
	"testing"

	"nexus-ware/internal/service/ware/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCELReleasePolicy_Default(t *testing.T) {
	p, err := NewCELReleasePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultReleaseExpression, p.Expression())

	cases := []struct {
		name     string
		snapshot domain.OrderSnapshot
		want     bool
	}{
		{"order absent", domain.OrderSnapshot{Found: false}, true},
		{"cancelled", domain.OrderSnapshot{Found: true, Status: domain.OrderStatusCancelled}, true},
		{"paid", domain.OrderSnapshot{Found: true, Status: domain.OrderStatusPaid}, false},
		{"new", domain.OrderSnapshot{Found: true, Status: domain.OrderStatusNew}, false},
		{"shipped", domain.OrderSnapshot{Found: true, Status: domain.OrderStatusShipped}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.ShouldRelease(tc.snapshot)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCELReleasePolicy_CustomExpression(t *testing.T) {
	p, err := NewCELReleasePolicy(`!found || status in ["CANCELLED", "INVALID"]`)
	require.NoError(t, err)

	got, err := p.ShouldRelease(domain.OrderSnapshot{Found: true, Status: domain.OrderStatusInvalid})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCELReleasePolicy_RejectsBadExpressions(t *testing.T) {
	_, err := NewCELReleasePolicy(`status ==`)
	assert.Error(t, err)

	_, err = NewCELReleasePolicy(`status`)
	assert.Error(t, err, "non-bool expression must be rejected")
}

func TestReloadingReleasePolicy_FollowsSource(t *testing.T) {
	expr := ""
	p, err := NewReloadingReleasePolicy(func() string { return expr })
	require.NoError(t, err)

	paid := domain.OrderSnapshot{Found: true, Status: domain.OrderStatusPaid}
	release, err := p.ShouldRelease(paid)
	require.NoError(t, err)
	assert.False(t, release)

	expr = `!found || status == "CANCELLED" || status == "PAID"`
	release, err = p.ShouldRelease(paid)
	require.NoError(t, err)
	assert.True(t, release)

	// 非法表达式不会替换当前规则
	expr = `status +`
	release, err = p.ShouldRelease(paid)
	require.NoError(t, err)
	assert.True(t, release)
}

func TestReloadingReleasePolicy_RejectsInvalidInitialExpression(t *testing.T) {
	_, err := NewReloadingReleasePolicy(func() string { return `"not a bool"` })
	assert.Error(t, err)
}
