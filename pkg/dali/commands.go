// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dali

import "fmt"

// StandardCommand is the second byte of an addressed forward frame with the
// selector bit set.
type StandardCommand uint8

// SpecialCommand is the first byte of a special forward frame. The second
// byte carries its data.
type SpecialCommand uint8

// Standard commands: direct control, no reply
const (
	Off                 StandardCommand = 0x00
	Up                  StandardCommand = 0x01
	Down                StandardCommand = 0x02
	StepUp              StandardCommand = 0x03
	StepDown            StandardCommand = 0x04
	RecallMaxLevel      StandardCommand = 0x05
	RecallMinLevel      StandardCommand = 0x06
	StepDownAndOff      StandardCommand = 0x07
	OnAndStepUp         StandardCommand = 0x08
	EnableDAPCSequence  StandardCommand = 0x09
	GoToLastActiveLevel StandardCommand = 0x0A
	ContinuousUp        StandardCommand = 0x0B
	ContinuousDown      StandardCommand = 0x0C
	GoToScene           StandardCommand = 0x10 // + scene 0-15
)

// Standard commands: configuration, must be sent twice
const (
	Reset                     StandardCommand = 0x20
	StoreActualLevelInDTR0    StandardCommand = 0x21
	SavePersistentVariables   StandardCommand = 0x22
	SetOperatingMode          StandardCommand = 0x23
	ResetMemoryBank           StandardCommand = 0x24
	IdentifyDevice            StandardCommand = 0x25
	SetMaxLevel               StandardCommand = 0x2A
	SetMinLevel               StandardCommand = 0x2B
	SetSystemFailureLevel     StandardCommand = 0x2C
	SetPowerOnLevel           StandardCommand = 0x2D
	SetFadeTime               StandardCommand = 0x2E
	SetFadeRate               StandardCommand = 0x2F
	SetExtendedFadeTime       StandardCommand = 0x30
	SetScene                  StandardCommand = 0x40 // + scene 0-15
	RemoveFromScene           StandardCommand = 0x50 // + scene 0-15
	AddToGroup                StandardCommand = 0x60 // + group 0-15
	RemoveFromGroup           StandardCommand = 0x70 // + group 0-15
	SetShortAddress           StandardCommand = 0x80
	EnableWriteMemory         StandardCommand = 0x81
)

// Standard commands: queries, answered with a back frame
const (
	QueryStatus                StandardCommand = 0x90
	QueryControlGearPresent    StandardCommand = 0x91
	QueryLampFailure           StandardCommand = 0x92
	QueryLampPowerOn           StandardCommand = 0x93
	QueryLimitError            StandardCommand = 0x94
	QueryResetState            StandardCommand = 0x95
	QueryMissingShortAddress   StandardCommand = 0x96
	QueryVersionNumber         StandardCommand = 0x97
	QueryContentDTR0           StandardCommand = 0x98
	QueryDeviceType            StandardCommand = 0x99
	QueryPhysicalMinimum       StandardCommand = 0x9A
	QueryPowerFailure          StandardCommand = 0x9B
	QueryContentDTR1           StandardCommand = 0x9C
	QueryContentDTR2           StandardCommand = 0x9D
	QueryOperatingMode         StandardCommand = 0x9E
	QueryLightSourceType       StandardCommand = 0x9F
	QueryActualLevel           StandardCommand = 0xA0
	QueryMaxLevel              StandardCommand = 0xA1
	QueryMinLevel              StandardCommand = 0xA2
	QueryPowerOnLevel          StandardCommand = 0xA3
	QuerySystemFailureLevel    StandardCommand = 0xA4
	QueryFadeTimeFadeRate      StandardCommand = 0xA5
	QueryManufacturerSpecific  StandardCommand = 0xA6
	QueryNextDeviceType        StandardCommand = 0xA7
	QueryExtendedFadeTime      StandardCommand = 0xA8
	QueryControlGearFailure    StandardCommand = 0xAA
	QuerySceneLevel            StandardCommand = 0xB0 // + scene 0-15
	QueryGroups0To7            StandardCommand = 0xC0
	QueryGroups8To15           StandardCommand = 0xC1
	QueryRandomAddressH        StandardCommand = 0xC2
	QueryRandomAddressM        StandardCommand = 0xC3
	QueryRandomAddressL        StandardCommand = 0xC4
	ReadMemoryLocation         StandardCommand = 0xC5
	QueryExtendedVersionNumber StandardCommand = 0xFF
)

// Special commands
const (
	Terminate             SpecialCommand = 0xA1
	SetDTR0               SpecialCommand = 0xA3
	Initialise            SpecialCommand = 0xA5
	Randomise             SpecialCommand = 0xA7
	Compare               SpecialCommand = 0xA9
	Withdraw              SpecialCommand = 0xAB
	Ping                  SpecialCommand = 0xAD
	SearchAddrH           SpecialCommand = 0xB1
	SearchAddrM           SpecialCommand = 0xB3
	SearchAddrL           SpecialCommand = 0xB5
	ProgramShortAddress   SpecialCommand = 0xB7
	VerifyShortAddress    SpecialCommand = 0xB9
	QueryShortAddress     SpecialCommand = 0xBB
	EnableDeviceType      SpecialCommand = 0xC1
	SetDTR1               SpecialCommand = 0xC3
	SetDTR2               SpecialCommand = 0xC5
	WriteMemoryLocation   SpecialCommand = 0xC7
	WriteMemoryLocationNR SpecialCommand = 0xC9
)

// IsSpecial reports whether the first byte of a forward frame selects a
// special command rather than an address.
func IsSpecial(b byte) bool {
	return b >= 0xA1 && b <= 0xCB && b&1 == 1
}

func (c StandardCommand) String() string {
	switch {
	case c >= GoToScene && c < GoToScene+16:
		return fmt.Sprintf("GO_TO_SCENE_%d", c-GoToScene)
	case c >= SetScene && c < SetScene+16:
		return fmt.Sprintf("SET_SCENE_%d", c-SetScene)
	case c >= RemoveFromScene && c < RemoveFromScene+16:
		return fmt.Sprintf("REMOVE_FROM_SCENE_%d", c-RemoveFromScene)
	case c >= AddToGroup && c < AddToGroup+16:
		return fmt.Sprintf("ADD_TO_GROUP_%d", c-AddToGroup)
	case c >= RemoveFromGroup && c < RemoveFromGroup+16:
		return fmt.Sprintf("REMOVE_FROM_GROUP_%d", c-RemoveFromGroup)
	case c >= QuerySceneLevel && c < QuerySceneLevel+16:
		return fmt.Sprintf("QUERY_SCENE_LEVEL_%d", c-QuerySceneLevel)
	}
	if name, ok := standardNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CMD_0x%02X", uint8(c))
}

func (c SpecialCommand) String() string {
	if name, ok := specialNames[c]; ok {
		return name
	}
	return fmt.Sprintf("SPECIAL_0x%02X", uint8(c))
}

var standardNames = map[StandardCommand]string{
	Off:                        "OFF",
	Up:                         "UP",
	Down:                       "DOWN",
	StepUp:                     "STEP_UP",
	StepDown:                   "STEP_DOWN",
	RecallMaxLevel:             "RECALL_MAX_LEVEL",
	RecallMinLevel:             "RECALL_MIN_LEVEL",
	StepDownAndOff:             "STEP_DOWN_AND_OFF",
	OnAndStepUp:                "ON_AND_STEP_UP",
	EnableDAPCSequence:         "ENABLE_DAPC_SEQUENCE",
	GoToLastActiveLevel:        "GO_TO_LAST_ACTIVE_LEVEL",
	ContinuousUp:               "CONTINUOUS_UP",
	ContinuousDown:             "CONTINUOUS_DOWN",
	Reset:                      "RESET",
	StoreActualLevelInDTR0:     "STORE_ACTUAL_LEVEL_IN_DTR0",
	SavePersistentVariables:    "SAVE_PERSISTENT_VARIABLES",
	SetOperatingMode:           "SET_OPERATING_MODE",
	ResetMemoryBank:            "RESET_MEMORY_BANK",
	IdentifyDevice:             "IDENTIFY_DEVICE",
	SetMaxLevel:                "SET_MAX_LEVEL",
	SetMinLevel:                "SET_MIN_LEVEL",
	SetSystemFailureLevel:      "SET_SYSTEM_FAILURE_LEVEL",
	SetPowerOnLevel:            "SET_POWER_ON_LEVEL",
	SetFadeTime:                "SET_FADE_TIME",
	SetFadeRate:                "SET_FADE_RATE",
	SetExtendedFadeTime:        "SET_EXTENDED_FADE_TIME",
	SetShortAddress:            "SET_SHORT_ADDRESS",
	EnableWriteMemory:          "ENABLE_WRITE_MEMORY",
	QueryStatus:                "QUERY_STATUS",
	QueryControlGearPresent:    "QUERY_CONTROL_GEAR_PRESENT",
	QueryLampFailure:           "QUERY_LAMP_FAILURE",
	QueryLampPowerOn:           "QUERY_LAMP_POWER_ON",
	QueryLimitError:            "QUERY_LIMIT_ERROR",
	QueryResetState:            "QUERY_RESET_STATE",
	QueryMissingShortAddress:   "QUERY_MISSING_SHORT_ADDRESS",
	QueryVersionNumber:         "QUERY_VERSION_NUMBER",
	QueryContentDTR0:           "QUERY_CONTENT_DTR0",
	QueryDeviceType:            "QUERY_DEVICE_TYPE",
	QueryPhysicalMinimum:       "QUERY_PHYSICAL_MINIMUM",
	QueryPowerFailure:          "QUERY_POWER_FAILURE",
	QueryContentDTR1:           "QUERY_CONTENT_DTR1",
	QueryContentDTR2:           "QUERY_CONTENT_DTR2",
	QueryOperatingMode:         "QUERY_OPERATING_MODE",
	QueryLightSourceType:       "QUERY_LIGHT_SOURCE_TYPE",
	QueryActualLevel:           "QUERY_ACTUAL_LEVEL",
	QueryMaxLevel:              "QUERY_MAX_LEVEL",
	QueryMinLevel:              "QUERY_MIN_LEVEL",
	QueryPowerOnLevel:          "QUERY_POWER_ON_LEVEL",
	QuerySystemFailureLevel:    "QUERY_SYSTEM_FAILURE_LEVEL",
	QueryFadeTimeFadeRate:      "QUERY_FADE_TIME_FADE_RATE",
	QueryManufacturerSpecific:  "QUERY_MANUFACTURER_SPECIFIC_MODE",
	QueryNextDeviceType:        "QUERY_NEXT_DEVICE_TYPE",
	QueryExtendedFadeTime:      "QUERY_EXTENDED_FADE_TIME",
	QueryControlGearFailure:    "QUERY_CONTROL_GEAR_FAILURE",
	QueryGroups0To7:            "QUERY_GROUPS_0_7",
	QueryGroups8To15:           "QUERY_GROUPS_8_15",
	QueryRandomAddressH:        "QUERY_RANDOM_ADDRESS_H",
	QueryRandomAddressM:        "QUERY_RANDOM_ADDRESS_M",
	QueryRandomAddressL:        "QUERY_RANDOM_ADDRESS_L",
	ReadMemoryLocation:         "READ_MEMORY_LOCATION",
	QueryExtendedVersionNumber: "QUERY_EXTENDED_VERSION_NUMBER",
}

var specialNames = map[SpecialCommand]string{
	Terminate:             "TERMINATE",
	SetDTR0:               "DTR0",
	Initialise:            "INITIALISE",
	Randomise:             "RANDOMISE",
	Compare:               "COMPARE",
	Withdraw:              "WITHDRAW",
	Ping:                  "PING",
	SearchAddrH:           "SEARCHADDRH",
	SearchAddrM:           "SEARCHADDRM",
	SearchAddrL:           "SEARCHADDRL",
	ProgramShortAddress:   "PROGRAM_SHORT_ADDRESS",
	VerifyShortAddress:    "VERIFY_SHORT_ADDRESS",
	QueryShortAddress:     "QUERY_SHORT_ADDRESS",
	EnableDeviceType:      "ENABLE_DEVICE_TYPE",
	SetDTR1:               "DTR1",
	SetDTR2:               "DTR2",
	WriteMemoryLocation:   "WRITE_MEMORY_LOCATION",
	WriteMemoryLocationNR: "WRITE_MEMORY_LOCATION_NO_REPLY",
}
