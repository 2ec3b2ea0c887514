package builtin

// crc8 computes an 8-bit CRC over data with the given initial value,
// final XOR and polynomial. Sensirion sensors use polynomial 0x31 with
// init 0xFF and no final XOR.
func crc8(data []byte, init, finalXOR, polynomial byte) byte {
	crc := init
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ polynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc ^ finalXOR
}
