package modbusctrl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	mbserver "github.com/tbrandon/mbserver"

	"github.com/Agrid-Dev/redwire/internal/heater"
	"github.com/Agrid-Dev/redwire/internal/ports"
)

// Register map
//
//	coil 0              power (read/write)
//	discrete input 0    availability
//	holding 0           target temperature, whole °C (read/write)
//	holding 1, 2        min / max temperature (read only)
//	input 0             ambient temperature ×100
//
// Values that have never been set read as NoValue.
const (
	NoValue          uint16 = 0x8000
	TemperatureScale int    = 100

	holdingRegisters = 3
)

// Config for the Modbus controller.
type Config struct {
	DeviceID string
	Addr     string
	UnitID   byte // UnitID (Modbus slave/unit ID). Use an integer 1..247.
}

type Controller struct {
	svc ports.HeaterService
	cfg Config

	serv *mbserver.Server
}

func New(svc ports.HeaterService, cfg Config) (*Controller, error) {
	if cfg.UnitID == 0 {
		return nil, errors.New("modbus: UnitID is required (non-zero)")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:1502"
	}
	return &Controller{svc: svc, cfg: cfg}, nil
}

// Run starts the Modbus server. Reads are answered from the current snapshot and
// writes are forwarded to the heater as requests. It blocks until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	serv := mbserver.NewServer()
	c.serv = serv

	// Register handlers BEFORE starting the TCP listener to avoid races inside mbserver
	// between handler registration and the server's goroutines.
	serv.RegisterFunctionHandler(1, c.readCoils)
	serv.RegisterFunctionHandler(2, c.readDiscreteInputs)
	serv.RegisterFunctionHandler(3, c.readHoldingRegisters)
	serv.RegisterFunctionHandler(4, c.readInputRegisters)
	serv.RegisterFunctionHandler(5, c.writeSingleCoil)
	serv.RegisterFunctionHandler(6, c.writeSingleRegister)
	serv.RegisterFunctionHandler(16, c.writeMultipleRegisters)

	if err := serv.ListenTCP(c.cfg.Addr); err != nil {
		return fmt.Errorf("mbserver listen tcp %s: %w", c.cfg.Addr, err)
	}

	<-ctx.Done()
	serv.Close()
	return ctx.Err()
}

func readRange(frame mbserver.Framer, limit int) (start, qty int, exc *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return 0, 0, &mbserver.IllegalDataValue
	}
	start = int(binary.BigEndian.Uint16(data[0:2]))
	qty = int(binary.BigEndian.Uint16(data[2:4]))
	if qty == 0 || qty > 125 {
		return 0, 0, &mbserver.IllegalDataValue
	}
	if start+qty > limit {
		return 0, 0, &mbserver.IllegalDataAddress
	}
	return start, qty, nil
}

func bitResponse(on bool) []byte {
	b := byte(0)
	if on {
		b = 0x01
	}
	// response: byte count (1) + bits
	return []byte{1, b}
}

func registerResponse(regs []uint16) []byte {
	resp := make([]byte, 1+len(regs)*2)
	resp[0] = byte(len(regs) * 2)
	for i, r := range regs {
		binary.BigEndian.PutUint16(resp[1+i*2:1+i*2+2], r)
	}
	return resp
}

// Read Coils (function 1) - coil 0 is power.
func (c *Controller) readCoils(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	if _, _, exc := readRange(frame, 1); exc != nil {
		return []byte{}, exc
	}
	return bitResponse(c.svc.Get().PowerOn), &mbserver.Success
}

// Read Discrete Inputs (function 2) - input 0 is availability.
func (c *Controller) readDiscreteInputs(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	if _, _, exc := readRange(frame, 1); exc != nil {
		return []byte{}, exc
	}
	return bitResponse(c.svc.Get().Available), &mbserver.Success
}

// Read Holding Registers (function 3) - target, min, max.
func (c *Controller) readHoldingRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, exc := readRange(frame, holdingRegisters)
	if exc != nil {
		return []byte{}, exc
	}
	snap := c.svc.Get()
	all := [holdingRegisters]uint16{
		encodeInt(snap.TargetTemperature),
		uint16(int16(snap.MinTemp)),
		uint16(int16(snap.MaxTemp)),
	}
	return registerResponse(all[start : start+qty]), &mbserver.Success
}

// Read Input Registers (function 4) - input 0 is the ambient temperature.
func (c *Controller) readInputRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	if _, _, exc := readRange(frame, 1); exc != nil {
		return []byte{}, exc
	}
	return registerResponse([]uint16{encodeTemp(c.svc.Get().AmbientTemperature)}), &mbserver.Success
}

// Write Single Coil (function 5) - power.
func (c *Controller) writeSingleCoil(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])
	if addr != 0 {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	switch value {
	case 0x0000:
		c.svc.SetMode(heater.ModeOff)
	case 0xFF00:
		c.svc.SetMode(heater.ModeHeat)
	default:
		return []byte{}, &mbserver.IllegalDataValue
	}

	// echo request (address + value)
	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

// Write Single Register (function 6) - only the target temperature is writable.
func (c *Controller) writeSingleRegister(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	if exc := c.writeRegister(addr, value); exc != nil {
		return []byte{}, exc
	}

	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

// Write Multiple Registers (function 16)
func (c *Controller) writeMultipleRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	d := frame.GetData()
	if len(d) < 5 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := binary.BigEndian.Uint16(d[0:2])
	quantity := binary.BigEndian.Uint16(d[2:4])
	byteCount := int(d[4])
	if byteCount != int(quantity)*2 || len(d) < 5+byteCount {
		return []byte{}, &mbserver.IllegalDataValue
	}
	for i := 0; i < int(quantity); i++ {
		val := binary.BigEndian.Uint16(d[5+i*2 : 5+i*2+2])
		if exc := c.writeRegister(start+uint16(i), val); exc != nil {
			return []byte{}, exc
		}
	}

	resp := make([]byte, 4)
	binary.BigEndian.PutUint16(resp[0:2], start)
	binary.BigEndian.PutUint16(resp[2:4], quantity)
	return resp, &mbserver.Success
}

func (c *Controller) writeRegister(addr, value uint16) *mbserver.Exception {
	if addr != 0 {
		return &mbserver.IllegalDataAddress
	}
	v := int(int16(value))
	snap := c.svc.Get()
	// the heater would drop it silently; Modbus clients get an explicit exception
	if err := heater.CheckRange(v, snap.MinTemp, snap.MaxTemp); err != nil {
		return &mbserver.IllegalDataValue
	}
	c.svc.SetTemperature(float64(v))
	return nil
}

func encodeInt(v *int) uint16 {
	if v == nil {
		return NoValue
	}
	return uint16(int16(*v))
}

func encodeTemp(v *float64) uint16 {
	if v == nil {
		return NoValue
	}
	r := int(math.Round(*v * float64(TemperatureScale)))
	// NoValue is math.MinInt16, keep real readings clear of it
	r = min(max(r, math.MinInt16+1), math.MaxInt16)
	return uint16(int16(r))
}
