// Package validate tags observations with a quality verdict against the
// controlled vocabularies of the MTConnect standard.
package validate

// VersionRange records when a literal entered and left the standard.
// Versions are encoded major*100+minor; zero means not applicable.
type VersionRange struct {
	Introduced int32
	Deprecated int32
}

// Vocabulary maps an observation name to its allowed literals. An empty
// literal map means the type is known but not controlled. The table is
// initialized at process start and read-only thereafter.
var Vocabulary = map[string]map[string]VersionRange{
	"Availability": {
		"AVAILABLE":   {},
		"UNAVAILABLE": {},
	},
	"Execution": {
		"READY":                 {},
		"ACTIVE":                {},
		"INTERRUPTED":           {},
		"FEED_HOLD":             {Introduced: 103},
		"STOPPED":               {},
		"OPTIONAL_STOP":         {Introduced: 104},
		"PROGRAM_STOPPED":       {Introduced: 104},
		"PROGRAM_COMPLETED":     {Introduced: 104},
		"WAIT":                  {Introduced: 105},
		"PROGRAM_OPTIONAL_STOP": {Introduced: 103, Deprecated: 200},
	},
	"ControllerMode": {
		"AUTOMATIC":       {},
		"MANUAL":          {},
		"MANUAL_DATA_INPUT": {},
		"SEMI_AUTOMATIC":  {},
		"EDIT":            {Introduced: 104},
	},
	"ControllerModeOverride": {
		"ON":  {},
		"OFF": {},
	},
	"DoorState": {
		"OPEN":     {},
		"CLOSED":   {},
		"UNLATCHED": {Introduced: 102},
	},
	"EmergencyStop": {
		"ARMED":     {},
		"TRIGGERED": {},
	},
	"PathMode": {
		"INDEPENDENT":        {},
		"SYNCHRONOUS":        {},
		"MIRROR":             {},
		"MASTER":             {Introduced: 102, Deprecated: 202},
	},
	"RotaryMode": {
		"SPINDLE": {},
		"INDEX":   {},
		"CONTOUR": {},
	},
	"AxisState": {
		"HOME":     {Introduced: 103},
		"TRAVEL":   {Introduced: 103},
		"PARKED":   {Introduced: 103},
		"STOPPED":  {Introduced: 103},
	},
	"AxisCoupling": {
		"TANDEM":      {},
		"SYNCHRONOUS": {},
		"MASTER":      {},
		"SLAVE":       {Deprecated: 202},
	},
	"ChuckState": {
		"OPEN":     {},
		"CLOSED":   {},
		"UNLATCHED": {},
	},
	"Direction": {
		"CLOCKWISE":         {},
		"COUNTER_CLOCKWISE": {},
		"POSITIVE":          {Introduced: 102},
		"NEGATIVE":          {Introduced: 102},
	},
	"FunctionalMode": {
		"PRODUCTION":      {Introduced: 103},
		"SETUP":           {Introduced: 103},
		"TEARDOWN":        {Introduced: 103},
		"MAINTENANCE":     {Introduced: 103},
		"PROCESS_DEVELOPMENT": {Introduced: 103},
	},
	"ProgramEdit": {
		"ACTIVE":   {Introduced: 103},
		"READY":    {Introduced: 103},
		"NOT_READY": {Introduced: 103},
	},
	"PartDetect": {
		"PRESENT":     {Introduced: 105},
		"NOT_PRESENT": {Introduced: 105},
	},
	"PowerState": {
		"ON":  {},
		"OFF": {},
	},
	"Interface": {
		"ENABLED":  {Introduced: 103},
		"DISABLED": {Introduced: 103},
	},
	"ActuatorState": {
		"ACTIVE":   {Introduced: 102},
		"INACTIVE": {Introduced: 102},
	},
	"SpindleInterlock": {
		"ACTIVE":   {Introduced: 103},
		"INACTIVE": {Introduced: 103},
	},
	"WaitState": {
		"POWERING_UP":        {Introduced: 105},
		"POWERING_DOWN":      {Introduced: 105},
		"PART_LOAD":          {Introduced: 105},
		"PART_UNLOAD":        {Introduced: 105},
		"TOOL_LOAD":          {Introduced: 105},
		"TOOL_UNLOAD":        {Introduced: 105},
		"MATERIAL_LOAD":      {Introduced: 105},
		"MATERIAL_UNLOAD":    {Introduced: 105},
		"SECONDARY_PROCESS":  {Introduced: 105},
		"PAUSING":            {Introduced: 105},
		"RESUMING":           {Introduced: 105},
	},

	// Known but uncontrolled event types.
	"Program":       {},
	"Line":          {},
	"Block":         {},
	"PartCount":     {},
	"ToolNumber":    {},
	"PalletId":      {},
	"Message":       {},
	"OperatorId":    {},
	"WorkholdingId": {},
	"DeviceUuid":    {},
	"AssetChanged":  {},
	"AssetRemoved":  {},
}
