package builtin

import (
	"fmt"
	"time"

	"github.com/flxdot/carlos-sub000/internal/driver"
	"github.com/flxdot/carlos-sub000/internal/edge"
)

// SI1145Module is the driver_module name of the SI1145 light sensor
// driver. The sensor has a fixed bus address of 0x60.
const SI1145Module = "si1145"

const si1145Address = 0x60

// Command register values.
const (
	si1145CmdReset     = 0x01
	si1145CmdParamSet  = 0xA0
	si1145CmdPSALSAuto = 0x0F
)

// RAM parameters, written through PARAMWR plus a PARAM_SET command.
const (
	si1145ParamCHList        = 0x01
	si1145CHListEnUV         = 0x80
	si1145CHListEnALSIR      = 0x20
	si1145CHListEnALSVis     = 0x10
	si1145CHListEnPS1        = 0x01
	si1145ParamPSADCMisc     = 0x0C
	si1145PSADCMiscRange     = 0x20
	si1145PSADCMiscPSMode    = 0x04
	si1145ParamPSLED12Sel    = 0x02
	si1145PSLED12SelPS1LED1  = 0x01
	si1145ParamPS1ADCMux     = 0x07
	si1145ADCMuxLargeIR      = 0x03
	si1145ParamALSIRADCMux   = 0x0E
	si1145ADCMuxSmallIR      = 0x00
	si1145ParamADCCounter511 = 0x70
	si1145ParamPSADCCounter  = 0x0A
	si1145ParamPSADCGain     = 0x0B
	si1145ParamIRADCCounter  = 0x1D
	si1145ParamIRADCGain     = 0x1E
	si1145ParamIRADCMisc     = 0x1F
	si1145ParamVisADCCounter = 0x10
	si1145ParamVisADCGain    = 0x11
	si1145ParamVisADCMisc    = 0x12
)

// Registers.
const (
	si1145RegIntCfg    = 0x03
	si1145RegIRQEn     = 0x04
	si1145RegIRQMode1  = 0x05
	si1145RegIRQMode2  = 0x06
	si1145RegHWKey     = 0x07
	si1145RegMeasRate0 = 0x08
	si1145RegMeasRate1 = 0x09
	si1145RegPSLED21   = 0x0F
	si1145RegUCoeff0   = 0x13
	si1145RegUCoeff1   = 0x14
	si1145RegUCoeff2   = 0x15
	si1145RegUCoeff3   = 0x16
	si1145RegParamWr   = 0x17
	si1145RegCommand   = 0x18
	si1145RegIRQStat   = 0x21
	si1145RegALSVis    = 0x22
	si1145RegALSIR     = 0x24
	si1145RegUVIndex   = 0x2C

	si1145IntCfgIntOE         = 0x01
	si1145IRQEnALSEverySample = 0x01
)

// Empirical dark offsets and sunlight calibration factors for the
// raw-to-lux conversion.
const (
	si1145DarkOffsetVis = 259
	si1145DarkOffsetIR  = 253
	si1145CalFactorVis  = 100
	si1145CalFactorIR   = 50
	si1145LuxConstant   = 2.44
)

// SI1145 reads visible, infrared and UV light levels over I2C.
type SI1145 struct {
	config driver.I2CConfig

	bus I2CBus
}

func init() {
	driver.MustRegister(SI1145Module, func(raw driver.RawConfig) (driver.Driver, error) {
		var cfg driver.I2CConfig
		if err := driver.Decode(raw, &cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		address, err := cfg.Address.Int()
		if err != nil {
			return nil, err
		}
		if address != si1145Address {
			return nil, fmt.Errorf("%w: %s: si1145 has a fixed address of 0x60, got %#02x",
				driver.ErrInvalidConfig, cfg.Identifier, address)
		}
		return &SI1145{config: cfg}, nil
	})
}

func (s *SI1145) Metadata() edge.DriverMetadata {
	return edge.DriverMetadata{
		Identifier:   s.config.Identifier,
		Direction:    edge.DirectionInput,
		DriverModule: SI1145Module,
		Signals: []edge.SignalDescriptor{
			{SignalIdentifier: "visual-light-raw", UnitOfMeasurement: edge.UnitLess},
			{SignalIdentifier: "visual-light", UnitOfMeasurement: edge.UnitLux},
			{SignalIdentifier: "infrared-light-raw", UnitOfMeasurement: edge.UnitLess},
			{SignalIdentifier: "infrared-light", UnitOfMeasurement: edge.UnitLux},
			{SignalIdentifier: "uv-index", UnitOfMeasurement: edge.UnitLess},
		},
	}
}

func (s *SI1145) Setup() error {
	bus, err := OpenI2C(si1145Address)
	if err != nil {
		return err
	}
	s.bus = bus

	if err := s.reset(); err != nil {
		return err
	}
	return s.loadCalibration()
}

func (s *SI1145) Read() (map[string]float64, error) {
	if s.bus == nil {
		return nil, fmt.Errorf("%s: sensor has not been set up", s.config.Identifier)
	}

	visRaw, err := s.readWord(si1145RegALSVis)
	if err != nil {
		return nil, err
	}
	irRaw, err := s.readWord(si1145RegALSIR)
	if err != nil {
		return nil, err
	}
	uvRaw, err := s.readWord(si1145RegUVIndex)
	if err != nil {
		return nil, err
	}

	return map[string]float64{
		"visual-light-raw":   float64(visRaw),
		"visual-light":       rawToLux(visRaw, si1145DarkOffsetVis, si1145CalFactorVis),
		"infrared-light-raw": float64(irRaw),
		"infrared-light":     rawToLux(irRaw, si1145DarkOffsetIR, si1145CalFactorIR),
		// The register holds the index * 1000 after the sunlight
		// calibration divide.
		"uv-index": float64(uvRaw) / 1000,
	}, nil
}

func (s *SI1145) reset() error {
	zeroed := []byte{
		si1145RegMeasRate0, si1145RegMeasRate1,
		si1145RegIRQEn, si1145RegIRQMode1, si1145RegIRQMode2, si1145RegIntCfg,
	}
	for _, register := range zeroed {
		if err := s.bus.WriteReg(register, 0x00); err != nil {
			return err
		}
	}
	if err := s.bus.WriteReg(si1145RegIRQStat, 0xFF); err != nil {
		return err
	}

	if err := s.bus.WriteReg(si1145RegCommand, si1145CmdReset); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	// Magic value required by the data sheet to start the sequencer.
	if err := s.bus.WriteReg(si1145RegHWKey, 0x17); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

func (s *SI1145) loadCalibration() error {
	// UV index measurement coefficients.
	coefficients := map[byte]byte{
		si1145RegUCoeff0: 0x29,
		si1145RegUCoeff1: 0x89,
		si1145RegUCoeff2: 0x02,
		si1145RegUCoeff3: 0x00,
	}
	for register, value := range coefficients {
		if err := s.bus.WriteReg(register, value); err != nil {
			return err
		}
	}

	channels := byte(si1145CHListEnUV | si1145CHListEnALSIR |
		si1145CHListEnALSVis | si1145CHListEnPS1)
	if err := s.writeParam(si1145ParamCHList, channels); err != nil {
		return err
	}

	if err := s.bus.WriteReg(si1145RegIntCfg, si1145IntCfgIntOE); err != nil {
		return err
	}
	if err := s.bus.WriteReg(si1145RegIRQEn, si1145IRQEnALSEverySample); err != nil {
		return err
	}

	// Proximity channel: 20 mA on LED 1, large IR photodiode.
	if err := s.bus.WriteReg(si1145RegPSLED21, 0x03); err != nil {
		return err
	}
	params := []struct{ param, value byte }{
		{si1145ParamPS1ADCMux, si1145ADCMuxLargeIR},
		{si1145ParamPSLED12Sel, si1145PSLED12SelPS1LED1},
		{si1145ParamPSADCGain, 0x00},
		{si1145ParamPSADCCounter, si1145ParamADCCounter511},
		{si1145ParamPSADCMisc, si1145PSADCMiscRange | si1145PSADCMiscPSMode},
		{si1145ParamALSIRADCMux, si1145ADCMuxSmallIR},
		{si1145ParamIRADCGain, 0x00},
		{si1145ParamIRADCCounter, si1145ParamADCCounter511},
		{si1145ParamIRADCMisc, 0x00},
		{si1145ParamVisADCGain, 0x00},
		{si1145ParamVisADCCounter, si1145ParamADCCounter511},
		{si1145ParamVisADCMisc, 0x00},
	}
	for _, p := range params {
		if err := s.writeParam(p.param, p.value); err != nil {
			return err
		}
	}

	// 255 * 31.25 us measurement rate, then free-running mode.
	if err := s.bus.WriteReg(si1145RegMeasRate0, 0xFF); err != nil {
		return err
	}
	return s.bus.WriteReg(si1145RegCommand, si1145CmdPSALSAuto)
}

func (s *SI1145) writeParam(parameter, value byte) error {
	if err := s.bus.WriteReg(si1145RegParamWr, value); err != nil {
		return err
	}
	return s.bus.WriteReg(si1145RegCommand, parameter|si1145CmdParamSet)
}

func (s *SI1145) readWord(register byte) (uint16, error) {
	data, err := s.bus.ReadReg(register, 2)
	if err != nil {
		return 0, err
	}
	if len(data) != 2 {
		return 0, fmt.Errorf("si1145: read %d bytes from register %#02x, want 2",
			len(data), register)
	}
	return uint16(data[0]) | uint16(data[1])<<8, nil
}

// rawToLux subtracts the sensor's dark offset and applies the
// sunlight calibration factor.
func rawToLux(raw uint16, darkOffset int, calibrationFactor float64) float64 {
	adjusted := int(raw) - darkOffset
	if adjusted < 0 {
		adjusted = 0
	}
	return float64(adjusted) / si1145LuxConstant * calibrationFactor
}
