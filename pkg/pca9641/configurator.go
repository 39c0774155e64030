package pca9641

// ControlBuilder stages CONTROL register changes and applies them in one read-modify-write.
// Only the fields that were staged are changed, every other bit keeps the value the chip has
// at Write time.
type ControlBuilder struct {
	dev    *Device
	staged []func(*Control)
}

// NewControlBuilder constructs ControlBuilder
func NewControlBuilder(dev *Device) *ControlBuilder {
	return &ControlBuilder{dev: dev}
}

func (obj *ControlBuilder) stage(fn func(*Control)) *ControlBuilder {
	obj.staged = append(obj.staged, fn)
	return obj
}

// Priority set the tie break hint used when both masters request the bus at once
func (obj *ControlBuilder) Priority(state bool) *ControlBuilder {
	return obj.stage(func(c *Control) { c.Priority = state })
}

// SMBusDisabled disables the SMBus timeouts of the downstream bus
func (obj *ControlBuilder) SMBusDisabled(state bool) *ControlBuilder {
	return obj.stage(func(c *Control) { c.SMBusDisabled = state })
}

// IdleTimerDisabled disables the 100 us bus idle detection
func (obj *ControlBuilder) IdleTimerDisabled(state bool) *ControlBuilder {
	return obj.stage(func(c *Control) { c.IdleTimerDisabled = state })
}

// SMBusSoftReset sends an SMBus software reset when the downstream bus gets connected
func (obj *ControlBuilder) SMBusSoftReset(state bool) *ControlBuilder {
	return obj.stage(func(c *Control) { c.SMBusSoftReset = state })
}

// BusInit starts a downstream bus initialization when connecting
func (obj *ControlBuilder) BusInit(state bool) *ControlBuilder {
	return obj.stage(func(c *Control) { c.BusInit = state })
}

func (obj *ControlBuilder) BusConnect(state bool) *ControlBuilder {
	return obj.stage(func(c *Control) { c.BusConnect = state })
}

func (obj *ControlBuilder) LockRequest(state bool) *ControlBuilder {
	return obj.stage(func(c *Control) { c.LockRequest = state })
}

// Write applies the staged changes to the chip
func (obj *ControlBuilder) Write() error {
	return obj.dev.UpdateRegister(CONTROL, func(old uint8) uint8 {
		var c Control
		c.SetValue(old)
		for _, fn := range obj.staged {
			fn(&c)
		}
		return c.GetValue()
	})
}
