package builtin

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// I2CBus is a device handle on the I2C bus, bound to one peripheral
// address.
type I2CBus interface {
	// WriteReg writes data to a register of the peripheral.
	WriteReg(register byte, data ...byte) error

	// ReadReg reads n bytes starting at a register of the peripheral.
	ReadReg(register byte, n int) ([]byte, error)

	Close() error
}

// Pin is a single GPIO line.
type Pin interface {
	// Output switches the line to output mode.
	Output() error

	// Input switches the line to input mode.
	Input() error

	Write(high bool) error
	Read() (bool, error)

	Close() error
}

// OpenI2C and OpenPin create hardware handles. They are variables so
// tests can substitute in-memory fakes.
var (
	OpenI2C = openDevI2C
	OpenPin = openSysfsPin
)

const i2cSlaveIoctl = 0x0703

// devI2C talks to /dev/i2c-1, the bus exposed on the 40-pin header.
type devI2C struct {
	file *os.File
}

func openDevI2C(address int) (I2CBus, error) {
	file, err := os.OpenFile("/dev/i2c-1", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus: %w", err)
	}
	_, _, errno := syscall.Syscall(
		syscall.SYS_IOCTL, file.Fd(), i2cSlaveIoctl, uintptr(address))
	if errno != 0 {
		file.Close()
		return nil, fmt.Errorf("bind i2c address %#02x: %w", address, errno)
	}
	return &devI2C{file: file}, nil
}

func (b *devI2C) WriteReg(register byte, data ...byte) error {
	buf := append([]byte{register}, data...)
	if _, err := b.file.Write(buf); err != nil {
		return fmt.Errorf("i2c write register %#02x: %w", register, err)
	}
	return nil
}

func (b *devI2C) ReadReg(register byte, n int) ([]byte, error) {
	if _, err := b.file.Write([]byte{register}); err != nil {
		return nil, fmt.Errorf("i2c select register %#02x: %w", register, err)
	}
	buf := make([]byte, n)
	if _, err := b.file.Read(buf); err != nil {
		return nil, fmt.Errorf("i2c read register %#02x: %w", register, err)
	}
	return buf, nil
}

func (b *devI2C) Close() error { return b.file.Close() }

// sysfsPin drives a GPIO line through /sys/class/gpio.
type sysfsPin struct {
	number int
	base   string
}

func openSysfsPin(number int) (Pin, error) {
	pin := &sysfsPin{
		number: number,
		base:   fmt.Sprintf("/sys/class/gpio/gpio%d", number),
	}
	if _, err := os.Stat(pin.base); os.IsNotExist(err) {
		export := []byte(strconv.Itoa(number))
		if err := os.WriteFile("/sys/class/gpio/export", export, 0o644); err != nil {
			return nil, fmt.Errorf("export gpio %d: %w", number, err)
		}
		// The gpio directory appears asynchronously after export.
		for i := 0; i < 10; i++ {
			if _, err := os.Stat(pin.base); err == nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	return pin, nil
}

func (p *sysfsPin) Output() error { return p.setDirection("out") }
func (p *sysfsPin) Input() error  { return p.setDirection("in") }

func (p *sysfsPin) setDirection(direction string) error {
	path := filepath.Join(p.base, "direction")
	if err := os.WriteFile(path, []byte(direction), 0o644); err != nil {
		return fmt.Errorf("set gpio %d direction: %w", p.number, err)
	}
	return nil
}

func (p *sysfsPin) Write(high bool) error {
	value := "0"
	if high {
		value = "1"
	}
	path := filepath.Join(p.base, "value")
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write gpio %d: %w", p.number, err)
	}
	return nil
}

func (p *sysfsPin) Read() (bool, error) {
	path := filepath.Join(p.base, "value")
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read gpio %d: %w", p.number, err)
	}
	return strings.TrimSpace(string(raw)) == "1", nil
}

func (p *sysfsPin) Close() error {
	unexport := []byte(strconv.Itoa(p.number))
	return os.WriteFile("/sys/class/gpio/unexport", unexport, 0o644)
}
