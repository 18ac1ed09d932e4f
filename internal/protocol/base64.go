// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package protocol

// alphabet is the 64-character table used for image transfer: uppercase,
// lowercase, digits, then '+' and '/', matching RFC
// 4648 standard base64 but with a tolerant decoder (unrecognized bytes,
// e.g. embedded newlines, are skipped rather than rejected).
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const padChar = '='

var decodeTable [256]int8

func init() {
	for i := range decodeTable {
		decodeTable[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		decodeTable[alphabet[i]] = int8(i)
	}
}

// Base64Encode encodes data using the custom alphabet above, '='-padded to
// a multiple of 4 characters.
func Base64Encode(data []byte) string {
	out := make([]byte, 0, (len(data)+2)/3*4)
	for i := 0; i < len(data); i += 3 {
		var chunk [3]byte
		n := copy(chunk[:], data[i:])

		out = append(out,
			alphabet[chunk[0]>>2],
			alphabet[(chunk[0]&0x03)<<4|chunk[1]>>4],
		)
		if n > 1 {
			out = append(out, alphabet[(chunk[1]&0x0f)<<2|chunk[2]>>6])
		} else {
			out = append(out, padChar)
		}
		if n > 2 {
			out = append(out, alphabet[chunk[2]&0x3f])
		} else {
			out = append(out, padChar)
		}
	}
	return string(out)
}

// Base64Decode decodes s, silently skipping any byte that is not part of
// the alphabet and not the pad character ('='), so that whitespace or
// corrupted framing in a transfer does not abort the whole decode.
func Base64Decode(s string) []byte {
	var bits uint32
	var nbits int
	out := make([]byte, 0, len(s)*3/4)

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == padChar {
			break
		}
		v := decodeTable[c]
		if v < 0 {
			continue
		}
		bits = bits<<6 | uint32(v)
		nbits += 6
		if nbits >= 8 {
			nbits -= 8
			out = append(out, byte(bits>>uint(nbits)))
		}
	}
	return out
}
