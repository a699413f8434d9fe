package config

import (
	"errors"
	"testing"

	"github.com/haolipeng/firewall_ledger/pkg/ruleEngine"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPolicySnapshotValidation(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(s *PolicySpec)
		field   string
		wantErr bool
	}{
		{"默认策略", func(s *PolicySpec) {}, "", false},
		{"阻断阈值为0", func(s *PolicySpec) { s.BlockThreshold = 0 }, "block_threshold", true},
		{"阻断阈值超过10", func(s *PolicySpec) { s.BlockThreshold = 11 }, "block_threshold", true},
		{"告警阈值为0", func(s *PolicySpec) { s.AlertThreshold = 0 }, "alert_threshold", true},
		{"最小尺寸为负", func(s *PolicySpec) { s.MinPacketSize = -1 }, "min_packet_size", true},
		{"尺寸范围颠倒", func(s *PolicySpec) { s.MinPacketSize = 100; s.MaxPacketSize = 99 }, "max_packet_size", true},
		{"空可疑词", func(s *PolicySpec) { s.SuspiciousWords = []string{" "} }, "suspicious_words", true},
		{"地址包含空白", func(s *PolicySpec) { s.BlacklistedIPs = []string{"10.0.0.1 10.0.0.2"} }, "blacklisted_ips", true},
		{"端口越界", func(s *PolicySpec) { s.MonitoredPorts = []int{70000} }, "monitored_ports", true},
		{"严重程度为0", func(s *PolicySpec) { s.Severities.Blacklist = 0 }, "severities.blacklist", true},
		{"重复规则ID", func(s *PolicySpec) {
			r := ruleEngine.Rule{State: ruleEngine.StateEnable, RuleID: "dup", Expression: "true", Severity: 1}
			s.Rules = []ruleEngine.Rule{r, r}
		}, "rules", true},
		{"规则表达式错误", func(s *PolicySpec) {
			s.Rules = []ruleEngine.Rule{{State: ruleEngine.StateEnable, RuleID: "bad", Expression: "packet.size >", Severity: 1}}
		}, "rules", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			spec := DefaultPolicySpec()
			tc.mutate(&spec)

			snap, err := NewPolicySnapshot(spec)
			if !tc.wantErr {
				require.NoError(t, err)
				assert.NotNil(t, snap)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrInvalidConfig))
			var cfgErr *types.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

func TestPolicySnapshotDeduplicates(t *testing.T) {
	spec := DefaultPolicySpec()
	spec.SuspiciousWords = []string{"DROP TABLE", "drop table", "<script"}
	spec.BlacklistedIPs = []string{"10.0.0.1", "10.0.0.1", "FE80::1", "fe80::1"}
	spec.MonitoredPorts = []int{445, 23, 445}

	snap, err := NewPolicySnapshot(spec)
	require.NoError(t, err)

	got := snap.Spec()
	assert.Equal(t, []string{"DROP TABLE", "<script"}, got.SuspiciousWords)
	assert.Equal(t, []string{"10.0.0.1", "FE80::1"}, got.BlacklistedIPs)
	assert.Equal(t, []int{23, 445}, got.MonitoredPorts)

	assert.True(t, snap.IsBlacklisted("fe80::1"))
	assert.True(t, snap.IsBlacklisted("10.0.0.1"))
	assert.False(t, snap.IsBlacklisted("10.0.0.10"))
	assert.True(t, snap.IsMonitored(23))
	assert.False(t, snap.IsMonitored(80))
}

func TestPolicySnapshotMatchSuspicious(t *testing.T) {
	spec := DefaultPolicySpec()
	spec.SuspiciousWords = []string{"<script", "DROP TABLE", "../"}

	snap, err := NewPolicySnapshot(spec)
	require.NoError(t, err)

	assert.Equal(t, []string{"DROP TABLE"}, snap.MatchSuspicious("x'; drop table users;--"))
	assert.Equal(t, []string{"<script", "../"}, snap.MatchSuspicious("../../<SCRIPT>"))
	assert.Nil(t, snap.MatchSuspicious("hello"))
	assert.Nil(t, snap.MatchSuspicious(""))
}

func TestPolicySnapshotIsImmutable(t *testing.T) {
	spec := DefaultPolicySpec()
	spec.SuspiciousWords = []string{"attack"}

	snap, err := NewPolicySnapshot(spec)
	require.NoError(t, err)

	// 修改传入的描述和返回的副本都不影响快照
	spec.SuspiciousWords[0] = "changed"
	copied := snap.Spec()
	copied.SuspiciousWords[0] = "changed"

	assert.Equal(t, []string{"attack"}, snap.MatchSuspicious("an attack"))
	assert.Equal(t, "attack", snap.Spec().SuspiciousWords[0])
}

func TestAlertAboveBlockIsWarning(t *testing.T) {
	spec := DefaultPolicySpec()
	spec.BlockThreshold = 3
	spec.AlertThreshold = 5

	snap, err := NewPolicySnapshot(spec)
	require.NoError(t, err)
	require.Len(t, snap.Warnings(), 1)
	assert.Contains(t, snap.Warnings()[0], "alert_threshold 5")

	def, err := NewPolicySnapshot(DefaultPolicySpec())
	require.NoError(t, err)
	assert.Empty(t, def.Warnings())
}

func TestSecurityLevelThresholds(t *testing.T) {
	testCases := []struct {
		level SecurityLevel
		block int
		alert int
	}{
		{LevelLow, 5, 3},
		{LevelMedium, 3, 2},
		{LevelHigh, 2, 1},
		{LevelMaximum, 1, 1},
		{"HIGH", 2, 1},
	}

	for _, tc := range testCases {
		t.Run(string(tc.level), func(t *testing.T) {
			block, alert, err := tc.level.Thresholds()
			require.NoError(t, err)
			assert.Equal(t, tc.block, block)
			assert.Equal(t, tc.alert, alert)
		})
	}

	_, _, err := SecurityLevel("paranoid").Thresholds()
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestPolicySnapshotCompilesRules(t *testing.T) {
	spec := DefaultPolicySpec()
	spec.Rules = []ruleEngine.Rule{
		{State: ruleEngine.StateEnable, RuleID: "telnet", Expression: "packet.dst_port == 23", Severity: 4},
		{State: ruleEngine.StateDisable, RuleID: "dns", Expression: "packet.protocol == \"DNS\"", Severity: 2},
	}

	snap, err := NewPolicySnapshot(spec)
	require.NoError(t, err)
	require.Len(t, snap.Rules(), 2)
	assert.Equal(t, "telnet", snap.Rules()[0].Rule.RuleID)
	assert.NotNil(t, snap.Rules()[0].Program)
}
