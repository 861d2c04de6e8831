package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Risk bucketing and ordering

func TestBucketRisk_Thresholds(t *testing.T) {
	testCases := []struct {
		score    float64
		expected RiskLevel
	}{
		{0.0, RiskNone},
		{0.19, RiskNone},
		{0.2, RiskLow},
		{0.39, RiskLow},
		{0.4, RiskMedium},
		{0.6, RiskHigh},
		{0.79, RiskHigh},
		{0.8, RiskCritical},
		{1.5, RiskCritical},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, BucketRisk(tc.score), "score %.2f", tc.score)
	}
}

func TestRiskLevel_Ordering(t *testing.T) {
	assert.True(t, RiskCritical.AtLeast(RiskHigh))
	assert.True(t, RiskHigh.AtLeast(RiskHigh))
	assert.False(t, RiskMedium.AtLeast(RiskHigh))
	assert.False(t, RiskNone.AtLeast(RiskLow))

	// A corrupt level must never slip under a threshold gate.
	assert.True(t, RiskLevel("GARBAGE").AtLeast(RiskCritical))
}

// Action lifecycle state machine

func TestActionStatus_Transitions(t *testing.T) {
	t.Run("legal edges", func(t *testing.T) {
		assert.True(t, StatusCreated.CanTransition(StatusBlocked))
		assert.True(t, StatusCreated.CanTransition(StatusPendingApproval))
		assert.True(t, StatusCreated.CanTransition(StatusExecuting))
		assert.True(t, StatusPendingApproval.CanTransition(StatusApproved))
		assert.True(t, StatusPendingApproval.CanTransition(StatusDenied))
		assert.True(t, StatusApproved.CanTransition(StatusExecuting))
		assert.True(t, StatusExecuting.CanTransition(StatusCompleted))
		assert.True(t, StatusExecuting.CanTransition(StatusFailed))
	})

	t.Run("illegal edges", func(t *testing.T) {
		assert.False(t, StatusCreated.CanTransition(StatusCompleted))
		assert.False(t, StatusBlocked.CanTransition(StatusExecuting))
		assert.False(t, StatusDenied.CanTransition(StatusApproved))
		assert.False(t, StatusCompleted.CanTransition(StatusExecuting))
		assert.False(t, StatusExecuting.CanTransition(StatusApproved))
	})

	t.Run("cancellation from non-terminal states", func(t *testing.T) {
		for _, s := range []ActionStatus{StatusCreated, StatusPendingApproval, StatusApproved, StatusExecuting} {
			assert.True(t, s.CanTransition(StatusCancelled), "from %s", s)
		}
	})

	t.Run("terminal states", func(t *testing.T) {
		for _, s := range []ActionStatus{StatusBlocked, StatusDenied, StatusCompleted, StatusFailed, StatusCancelled} {
			assert.True(t, s.Terminal(), "%s", s)
		}
		for _, s := range []ActionStatus{StatusCreated, StatusPendingApproval, StatusApproved, StatusExecuting} {
			assert.False(t, s.Terminal(), "%s", s)
		}
	})
}

func TestAutonomousAction_Executable(t *testing.T) {
	action := AutonomousAction{IsCompliant: true}
	assert.True(t, action.Executable(), "compliant action without approval requirement")

	action.RequiresUserApproval = true
	assert.False(t, action.Executable(), "approval required but not given")

	action.UserApproved = true
	assert.True(t, action.Executable(), "approval required and given")

	action.IsCompliant = false
	assert.False(t, action.Executable(), "non-compliant actions are never executable")
}

// Permission policy table

func TestPermissionType_Attributes(t *testing.T) {
	t.Run("prohibited set", func(t *testing.T) {
		for _, p := range []PermissionType{PermissionCamera, PermissionMicrophone, PermissionSMS, PermissionPhoneCalls, PermissionHealthData} {
			assert.True(t, p.ProhibitedForAutonomous(), "%s", p)
		}
		for _, p := range []PermissionType{PermissionLocation, PermissionContacts, PermissionCalendar, PermissionStorage, PermissionNotifications, PermissionNetwork, PermissionSystemSettings} {
			assert.False(t, p.ProhibitedForAutonomous(), "%s", p)
		}
	})

	t.Run("unknown permission defaults conservative", func(t *testing.T) {
		unknown := PermissionType("TELEPATHY")
		attrs := unknown.Attributes()
		assert.True(t, attrs.ProhibitedForAutonomous)
		assert.True(t, attrs.RequiresSpecialJustification)
		assert.Equal(t, "TELEPATHY", attrs.DisplayName)
	})

	t.Run("table covers every permission", func(t *testing.T) {
		require.Len(t, AllPermissions(), 12)
		for _, p := range AllPermissions() {
			assert.NotEmpty(t, p.Attributes().DisplayName)
		}
	})
}

// Confidence bucketing

func TestBucketConfidence(t *testing.T) {
	assert.Equal(t, ConfidenceVeryHigh, BucketConfidence(0.9))
	assert.Equal(t, ConfidenceVeryHigh, BucketConfidence(0.8))
	assert.Equal(t, ConfidenceHigh, BucketConfidence(0.7))
	assert.Equal(t, ConfidenceModerate, BucketConfidence(0.5))
	assert.Equal(t, ConfidenceLow, BucketConfidence(0.3))
	assert.Equal(t, ConfidenceVeryLow, BucketConfidence(0.1))
}

// Scheduled tasks

func TestScheduledTask_Recurring(t *testing.T) {
	task := ScheduledTask{}
	assert.False(t, task.Recurring())
	task.Recurrence = "@every 5m"
	assert.True(t, task.Recurring())
}
