// Package crc implements CRC-8 used by Sensirion SHT3x transducers:
// polynomial 0x31 (x^8 + x^5 + x^4 + 1), initial value 0xff, no reflection, no final xor.
package crc

const CRC_POLY_31 byte = 0x31
const CRC_INIT_FF byte = 0xff

func CRC8_p31(crc, data byte) byte {
	crc ^= data
	var i byte = 0
	for ; i < 8; i++ {
		if (crc & 0x80) != 0 {
			crc <<= 1
			crc ^= CRC_POLY_31
		} else {
			crc <<= 1
		}
	}
	return crc
}

func CRC8_p31_n(crc byte, bs []byte) byte {
	for _, b := range bs {
		crc = CRC8_p31(crc, b)
	}
	return crc
}

// Word checksum as sent by sensor after each 16 bit big endian word.
func CRC8_p31_word(msb, lsb byte) byte {
	out := CRC8_p31(CRC_INIT_FF, msb)
	out = CRC8_p31(out, lsb)
	return out
}
