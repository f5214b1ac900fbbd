package service

import (
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
)

// NamedSwitch is a switch with a Name characteristic, so that several of them
// on one accessory can be told apart in the Home app.
type NamedSwitch struct {
	*service.S
	On   *characteristic.On
	Name *characteristic.Name
}

func NewNamedSwitch(name string) *NamedSwitch {
	s := NamedSwitch{}
	s.S = service.New(service.TypeSwitch)

	s.On = characteristic.NewOn()
	s.AddC(s.On.C)

	s.Name = characteristic.NewName()
	s.Name.SetValue(name)
	s.AddC(s.Name.C)

	return &s
}
