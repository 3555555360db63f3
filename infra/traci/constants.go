package traci

// Command identifiers.
const (
	cmdGetVersion = 0x00
	cmdSimStep    = 0x02
	cmdSetOrder   = 0x03
	cmdClose      = 0x7f

	cmdGetTLVariable      = 0xa2
	cmdGetLaneVariable    = 0xa3
	cmdGetVehicleVariable = 0xa4
	cmdGetEdgeVariable    = 0xaa
	cmdGetSimVariable     = 0xab

	cmdSetTLVariable      = 0xc2
	cmdSetVehicleVariable = 0xc4
)

// Status results.
const (
	rtypeOK  = 0x00
	rtypeNI  = 0x01
	rtypeErr = 0xff
)

// Data types.
const (
	typePosition2D = 0x01
	typeUByte      = 0x07
	typeByte       = 0x08
	typeInteger    = 0x09
	typeDouble     = 0x0b
	typeString     = 0x0c
	typeStringList = 0x0e
	typeCompound   = 0x0f
	typeDoubleList = 0x10
	typeColor      = 0x11
)

// Variables shared by all domains.
const (
	varIDList  = 0x00
	varIDCount = 0x01
)

// Vehicle variables.
const (
	varSpeed        = 0x40
	varPosition     = 0x42
	varLength       = 0x44
	varType         = 0x4f
	varRoadID       = 0x50
	varLaneID       = 0x51
	varLaneIndex    = 0x52
	varLanePosition = 0x56
	varCO2Emission  = 0x60
	varFuel         = 0x65
	varLeader       = 0x68
	varAcceleration = 0x72
	varParameter    = 0x7e
	varDistance     = 0x84
)

// Lane and edge variables.
const (
	varLastStepVehicleNumber = 0x10
	varLastStepMeanSpeed     = 0x11
	varLastStepVehicleIDs    = 0x12
	varLaneEdgeID            = 0x31
)

// Traffic light variables.
const (
	varTLPhaseIndex         = 0x22
	varTLControlledLinks    = 0x27
	varTLCurrentPhase       = 0x28
	varTLCompleteDefinition = 0x2b
)

// Simulation variables.
const (
	varTime                = 0x66
	varMinExpectedVehicles = 0x7d
)
