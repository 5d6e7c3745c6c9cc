package opendeck

import (
	"fmt"
	"strings"
)

// Kind selects how a command is put on the wire.
type Kind int

const (
	// KindValue commands address a block/section/index value.
	KindValue Kind = iota
	// KindSpecial commands are single-id requests: F0 00 53 43 00 00 id F7.
	KindSpecial
	// KindRaw commands carry a prebuilt frame, such as a restore or firmware line.
	KindRaw
)

// Wish is the operation requested by a value command.
type Wish byte

const (
	WishGet    Wish = 0x00
	WishSet    Wish = 0x01
	WishBackup Wish = 0x02
)

// Amount selects a single value or a whole section.
type Amount byte

const (
	AmountSingle Amount = 0x00
	AmountAll    Amount = 0x01
)

// Special request ids.
const (
	SpecialConnClose         byte = 0x00
	SpecialConnOpen          byte = 0x01
	SpecialValueSize         byte = 0x02
	SpecialValuesPerMessage  byte = 0x03
	SpecialFullBackup        byte = 0x1B
	SpecialRestoreStart      byte = 0x1C
	SpecialRestoreEnd        byte = 0x1D
	SpecialHardwareUID       byte = 0x42
	SpecialFirmwareAndUID    byte = 0x43
	SpecialFactoryReset      byte = 0x44
	SpecialMaxComponents     byte = 0x4D
	SpecialSupportedPresets  byte = 0x50
	SpecialBootloaderSupport byte = 0x51
	SpecialRebootBootloader  byte = 0x55
	SpecialFirmwareVersion   byte = 0x56
	SpecialRebootApplication byte = 0x7F
)

// Command is a request the client knows how to issue.
type Command int

const (
	GetValue Command = iota
	SetValue
	GetValueSize
	GetValuesPerMessage
	GetFirmwareVersion
	IdentifyBoard
	GetNumberOfSupportedComponents
	GetNumberOfSupportedPresets
	GetBootLoaderSupport
	Backup
	RestoreBackup
	FirmwareUpdate
	BootloaderMode
	Reboot
	FactoryReset
	Handshake

	numCommands
)

type commandInfo struct {
	name      string
	kind      Kind
	id        byte
	reply     bool
	broadcast bool
}

var commands = [numCommands]commandInfo{
	GetValue:                       {name: "GetValue", kind: KindValue, id: byte(WishGet), reply: true},
	SetValue:                       {name: "SetValue", kind: KindValue, id: byte(WishSet), reply: true},
	GetValueSize:                   {name: "GetValueSize", kind: KindSpecial, id: SpecialValueSize, reply: true},
	GetValuesPerMessage:            {name: "GetValuesPerMessage", kind: KindSpecial, id: SpecialValuesPerMessage, reply: true},
	GetFirmwareVersion:             {name: "GetFirmwareVersion", kind: KindSpecial, id: SpecialFirmwareVersion, reply: true},
	IdentifyBoard:                  {name: "IdentifyBoard", kind: KindSpecial, id: SpecialHardwareUID, reply: true},
	GetNumberOfSupportedComponents: {name: "GetNumberOfSupportedComponents", kind: KindSpecial, id: SpecialMaxComponents, reply: true},
	GetNumberOfSupportedPresets:    {name: "GetNumberOfSupportedPresets", kind: KindSpecial, id: SpecialSupportedPresets, reply: true},
	GetBootLoaderSupport:           {name: "GetBootLoaderSupport", kind: KindSpecial, id: SpecialBootloaderSupport, reply: true},
	Backup:                         {name: "Backup", kind: KindSpecial, id: SpecialFullBackup, reply: true, broadcast: true},
	RestoreBackup:                  {name: "RestoreBackup", kind: KindRaw},
	FirmwareUpdate:                 {name: "FirmwareUpdate", kind: KindRaw},
	BootloaderMode:                 {name: "BootloaderMode", kind: KindSpecial, id: SpecialRebootBootloader},
	Reboot:                         {name: "Reboot", kind: KindSpecial, id: SpecialRebootApplication, reply: true},
	FactoryReset:                   {name: "FactoryReset", kind: KindSpecial, id: SpecialFactoryReset, reply: true},
	Handshake:                      {name: "Handshake", kind: KindSpecial, id: SpecialConnOpen, reply: true},
}

func (c Command) valid() bool { return c >= 0 && c < numCommands }

func (c Command) String() string {
	if !c.valid() {
		return fmt.Sprintf("Command(%d)", int(c))
	}
	return commands[c].name
}

func (c Command) Kind() Kind {
	if !c.valid() {
		return KindRaw
	}
	return commands[c].kind
}

// ID is the byte a reply carries to correlate with this command: the wish
// for value commands and the special id for special commands.
func (c Command) ID() byte {
	if !c.valid() {
		return 0
	}
	return commands[c].id
}

// ExpectsReply is false for commands that resolve as soon as they are written.
func (c Command) ExpectsReply() bool {
	return c.valid() && commands[c].reply
}

// Broadcast commands receive every protocol frame while in flight.
func (c Command) Broadcast() bool {
	return c.valid() && commands[c].broadcast
}

// Matches reports whether resp is a reply to c.
func (c Command) Matches(resp Response) bool {
	if !c.ExpectsReply() {
		return false
	}
	if c.Broadcast() {
		return true
	}
	return resp.HasID && resp.ID == c.ID()
}

// ParseCommand looks a command up by name, ignoring case.
func ParseCommand(name string) (Command, error) {
	for i, info := range commands {
		if strings.EqualFold(info.name, name) {
			return Command(i), nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", name)
}
