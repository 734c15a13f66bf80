package exposes

// Common exposes shared by many definitions.

func Linkquality() *Expose {
	return Numeric("linkquality", AccessState).WithUnit("lqi").
		WithDescription("Link quality (signal strength)").
		WithValueMin(0).WithValueMax(255).WithCategory(CategoryDiagnostic)
}

func Battery() *Expose {
	return Numeric("battery", AccessStateGet).WithUnit("%").
		WithDescription("Remaining battery in %").
		WithValueMin(0).WithValueMax(100).WithCategory(CategoryDiagnostic)
}

func BatteryLow() *Expose {
	return Binary("battery_low", AccessState, true, false).
		WithDescription("Indicates if the battery of this device is almost empty").
		WithCategory(CategoryDiagnostic)
}

func BatteryVoltage() *Expose {
	return Numeric("voltage", AccessStateGet).WithUnit("mV").
		WithDescription("Voltage of the battery in millivolts").
		WithCategory(CategoryDiagnostic)
}

func Temperature() *Expose {
	return Numeric("temperature", AccessStateGet).WithUnit("°C").
		WithDescription("Measured temperature value")
}

func LocalTemperature() *Expose {
	return Numeric("local_temperature", AccessStateGet).WithUnit("°C").
		WithDescription("Current temperature measured on the device")
}

func Humidity() *Expose {
	return Numeric("humidity", AccessStateGet).WithUnit("%").
		WithDescription("Measured relative humidity")
}

func Illuminance() *Expose {
	return Numeric("illuminance", AccessStateGet).WithUnit("lx").
		WithDescription("Measured illuminance")
}

func Occupancy() *Expose {
	return Binary("occupancy", AccessState, true, false).
		WithDescription("Indicates whether the device detected occupancy")
}

func Contact() *Expose {
	return Binary("contact", AccessState, false, true).
		WithDescription("Indicates if the contact is closed (= true) or open (= false)")
}

func WaterLeak() *Expose {
	return Binary("water_leak", AccessState, true, false).
		WithDescription("Indicates whether the device detected a water leak")
}

func Tamper() *Expose {
	return Binary("tamper", AccessState, true, false).
		WithDescription("Indicates whether the device is tampered")
}

func ChildLock() *Expose {
	return Binary("child_lock", AccessStateSet, "LOCK", "UNLOCK").
		WithDescription("Enables/disables physical input on the device")
}

func Power() *Expose {
	return Numeric("power", AccessStateGet).WithUnit("W").
		WithDescription("Instantaneous measured power")
}

func Voltage() *Expose {
	return Numeric("voltage", AccessStateGet).WithUnit("V").
		WithDescription("Measured electrical potential value")
}

func Current() *Expose {
	return Numeric("current", AccessStateGet).WithUnit("A").
		WithDescription("Instantaneous measured electrical current")
}

func Energy() *Expose {
	return Numeric("energy", AccessStateGet).WithUnit("kWh").
		WithDescription("Sum of consumed energy")
}

func Action(values []string) *Expose {
	return Enum("action", AccessState, values).
		WithDescription("Triggered action (e.g. a button click)").
		WithCategory("")
}

// Switch is an on/off composite with a single "state" feature.
func Switch() *Expose {
	state := Binary("state", AccessAll, "ON", "OFF").WithValueToggle("TOGGLE").
		WithDescription("On/off state of the switch")
	e := Composite("switch", "", AccessAll, state)
	e.Type = TypeSwitch
	e.Label = ""
	return e
}

// Light is an on/off composite with an optional brightness feature.
func Light(withBrightness bool) *Expose {
	features := []*Expose{
		Binary("state", AccessAll, "ON", "OFF").WithValueToggle("TOGGLE").
			WithDescription("On/off state of this light"),
	}
	if withBrightness {
		features = append(features, Numeric("brightness", AccessAll).
			WithValueMin(0).WithValueMax(254).
			WithDescription("Brightness of this light"))
	}
	e := Composite("light", "", AccessAll, features...)
	e.Type = TypeLight
	e.Label = ""
	return e
}

// Climate is a thermostat composite.
func Climate(features ...*Expose) *Expose {
	e := Composite("climate", "", AccessAll, features...)
	e.Type = TypeClimate
	e.Label = ""
	return e
}
