// File: api/schemas/permissions.go
package schemas

// PermissionType identifies a capability the system may need before acting on
// a user's behalf. The set is closed; policy attributes for each value live in
// the static policy table below.
type PermissionType string

const (
	PermissionLocation       PermissionType = "LOCATION"
	PermissionCamera         PermissionType = "CAMERA"
	PermissionMicrophone     PermissionType = "MICROPHONE"
	PermissionContacts       PermissionType = "CONTACTS"
	PermissionCalendar       PermissionType = "CALENDAR"
	PermissionStorage        PermissionType = "STORAGE"
	PermissionNotifications  PermissionType = "NOTIFICATIONS"
	PermissionNetwork        PermissionType = "NETWORK"
	PermissionSMS            PermissionType = "SMS"
	PermissionPhoneCalls     PermissionType = "PHONE_CALLS"
	PermissionHealthData     PermissionType = "HEALTH_DATA"
	PermissionSystemSettings PermissionType = "SYSTEM_SETTINGS"
)

// PermissionStatus is the answer the host permission subsystem gives for a
// single permission. Anything other than granted is treated as not granted by
// the decision engine.
type PermissionStatus string

const (
	PermissionGranted PermissionStatus = "GRANTED"
	PermissionDenied  PermissionStatus = "DENIED"
	PermissionUnknown PermissionStatus = "UNKNOWN"
)

// PermissionAttributes carries the static policy bits attached to a
// PermissionType. The table is immutable policy, not user data.
type PermissionAttributes struct {
	DisplayName                  string
	ProhibitedForAutonomous      bool
	RequiresSpecialJustification bool
}

// permissionTable is the single source of truth for permission policy.
var permissionTable = map[PermissionType]PermissionAttributes{
	PermissionLocation:       {DisplayName: "Location", RequiresSpecialJustification: true},
	PermissionCamera:         {DisplayName: "Camera", ProhibitedForAutonomous: true, RequiresSpecialJustification: true},
	PermissionMicrophone:     {DisplayName: "Microphone", ProhibitedForAutonomous: true, RequiresSpecialJustification: true},
	PermissionContacts:       {DisplayName: "Contacts", RequiresSpecialJustification: true},
	PermissionCalendar:       {DisplayName: "Calendar"},
	PermissionStorage:        {DisplayName: "Storage"},
	PermissionNotifications:  {DisplayName: "Notifications"},
	PermissionNetwork:        {DisplayName: "Network"},
	PermissionSMS:            {DisplayName: "SMS", ProhibitedForAutonomous: true, RequiresSpecialJustification: true},
	PermissionPhoneCalls:     {DisplayName: "Phone Calls", ProhibitedForAutonomous: true, RequiresSpecialJustification: true},
	PermissionHealthData:     {DisplayName: "Health Data", ProhibitedForAutonomous: true, RequiresSpecialJustification: true},
	PermissionSystemSettings: {DisplayName: "System Settings", RequiresSpecialJustification: true},
}

// Attributes returns the policy attributes for the permission. Unknown values
// get a conservative default: prohibited and requiring justification.
func (p PermissionType) Attributes() PermissionAttributes {
	if attrs, ok := permissionTable[p]; ok {
		return attrs
	}
	return PermissionAttributes{
		DisplayName:                  string(p),
		ProhibitedForAutonomous:      true,
		RequiresSpecialJustification: true,
	}
}

// ProhibitedForAutonomous reports whether the permission may never be
// exercised without a human in the loop.
func (p PermissionType) ProhibitedForAutonomous() bool {
	return p.Attributes().ProhibitedForAutonomous
}

// RequiresSpecialJustification reports whether use of the permission must be
// accompanied by an explicit justification in the audit trail.
func (p PermissionType) RequiresSpecialJustification() bool {
	return p.Attributes().RequiresSpecialJustification
}

// AllPermissions returns every known permission type. The order is stable so
// callers can render deterministic output.
func AllPermissions() []PermissionType {
	return []PermissionType{
		PermissionLocation,
		PermissionCamera,
		PermissionMicrophone,
		PermissionContacts,
		PermissionCalendar,
		PermissionStorage,
		PermissionNotifications,
		PermissionNetwork,
		PermissionSMS,
		PermissionPhoneCalls,
		PermissionHealthData,
		PermissionSystemSettings,
	}
}
