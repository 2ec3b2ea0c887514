package builtin

import "fmt"

// fakeBus scripts I2C register reads and records writes.
type fakeBus struct {
	writes [][]byte
	reads  map[byte][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{reads: make(map[byte][]byte)}
}

func (b *fakeBus) WriteReg(register byte, data ...byte) error {
	b.writes = append(b.writes, append([]byte{register}, data...))
	return nil
}

func (b *fakeBus) ReadReg(register byte, n int) ([]byte, error) {
	data, ok := b.reads[register]
	if !ok {
		return nil, fmt.Errorf("no scripted read for register %#02x", register)
	}
	if len(data) < n {
		return nil, fmt.Errorf("scripted read for register %#02x has %d bytes, want %d",
			register, len(data), n)
	}
	return data[:n], nil
}

func (b *fakeBus) Close() error { return nil }

// fakePin records pin operations and plays back scripted reads.
type fakePin struct {
	mode   string
	writes []bool
	reads  []bool
	cursor int
}

func (p *fakePin) Output() error { p.mode = "out"; return nil }
func (p *fakePin) Input() error  { p.mode = "in"; return nil }

func (p *fakePin) Write(high bool) error {
	p.writes = append(p.writes, high)
	return nil
}

func (p *fakePin) Read() (bool, error) {
	if p.cursor >= len(p.reads) {
		return false, fmt.Errorf("no scripted read at position %d", p.cursor)
	}
	value := p.reads[p.cursor]
	p.cursor++
	return value, nil
}

func (p *fakePin) Close() error { return nil }
